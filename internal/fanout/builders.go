package fanout

import (
	"time"

	"adchat/internal/domain/entity"
)

func createThreadSet(thread *entity.Thread) *ChangeSet {
	cs := &ChangeSet{label: "create_thread"}
	cs.add(Write{Ref: ThreadRef(thread.ID), Op: OpCreate, Data: thread})
	for _, userID := range thread.Participants {
		cs.add(Write{
			Ref: IndexRef(userID, thread.ID),
			Op:  OpCreate,
			Data: &entity.IndexEntry{
				UserID:      userID,
				ThreadID:    thread.ID,
				Kind:        thread.Kind,
				LastMessage: nil,
				UnreadCount: 0,
				UpdatedAt:   thread.UpdatedAt,
			},
		})
	}
	return cs
}

// messageSummarySet records message as the thread's last message and bumps
// the unread counter of every participant except the sender, on the thread
// and on each index entry.
func messageSummarySet(thread *entity.Thread, message *entity.Message) *ChangeSet {
	summary := message.Summary()
	cs := &ChangeSet{label: "message_summary"}

	threadFields := summaryFields(summary, message.CreatedAt)
	for _, userID := range thread.Participants {
		if userID == message.SenderID {
			continue
		}
		threadFields = append(threadFields, Field{
			Path:  []string{entity.FieldUnreadCount, userID},
			Value: Increment{N: 1},
		})
	}
	cs.add(Write{Ref: ThreadRef(thread.ID), Op: OpUpdate, Fields: threadFields})

	for _, userID := range thread.Participants {
		fields := summaryFields(summary, message.CreatedAt)
		if userID != message.SenderID {
			fields = append(fields, Field{Path: []string{entity.FieldUnreadCount}, Value: Increment{N: 1}})
		}
		cs.add(Write{Ref: IndexRef(userID, thread.ID), Op: OpUpdate, Fields: fields})
	}
	return cs
}

// summaryFields only move lastMessage and updatedAt forward in time.
func summaryFields(summary *entity.LastMessage, at time.Time) []Field {
	return []Field{
		{Path: []string{entity.FieldLastMessage}, Value: IfNewer{At: at, Value: summary}},
		{Path: []string{entity.FieldUpdatedAt}, Value: IfNewer{At: at, Value: at}},
	}
}

func markReadSet(threadID, userID string) *ChangeSet {
	cs := &ChangeSet{label: "mark_thread_read"}
	cs.add(Write{
		Ref:    ThreadRef(threadID),
		Op:     OpUpdate,
		Fields: []Field{{Path: []string{entity.FieldUnreadCount, userID}, Value: 0}},
	})
	cs.add(Write{
		Ref:    IndexRef(userID, threadID),
		Op:     OpUpdate,
		Fields: []Field{{Path: []string{entity.FieldUnreadCount}, Value: 0}},
	})
	return cs
}

func typingSet(threadID, userID string, typing bool) *ChangeSet {
	cs := &ChangeSet{label: "typing"}
	cs.add(Write{
		Ref:    ThreadRef(threadID),
		Op:     OpUpdate,
		Fields: []Field{{Path: []string{entity.FieldTyping, userID}, Value: typing}},
	})
	return cs
}

func deleteThreadSet(thread *entity.Thread) *ChangeSet {
	cs := &ChangeSet{label: "delete_thread"}
	cs.add(Write{Ref: ThreadRef(thread.ID), Op: OpDelete})
	for _, userID := range thread.Participants {
		cs.add(Write{Ref: IndexRef(userID, thread.ID), Op: OpDelete})
	}
	return cs
}

// newThreadRecord fills the per-participant maps with zero values.
func newThreadRecord(thread *entity.Thread, now time.Time) {
	thread.UnreadCount = make(map[string]int, len(thread.Participants))
	thread.Typing = make(map[string]bool, len(thread.Participants))
	thread.OnlineStatus = make(map[string]bool, len(thread.Participants))
	for _, userID := range thread.Participants {
		thread.UnreadCount[userID] = 0
		thread.Typing[userID] = false
		thread.OnlineStatus[userID] = false
	}
	if thread.ParticipantDetails == nil {
		thread.ParticipantDetails = make(map[string]entity.ParticipantDetail)
	}
	thread.LastMessage = nil
	thread.CreatedAt = now
	thread.UpdatedAt = now
}
