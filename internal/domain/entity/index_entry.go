package entity

import "time"

// IndexEntry is a participant's read-optimized copy of a thread summary,
// stored at userThreads/{userId}/threads/{threadId}. It is never the source
// of truth.
type IndexEntry struct {
	UserID      string       `json:"user_id" firestore:"userId"`
	ThreadID    string       `json:"thread_id" firestore:"threadId"`
	Kind        ThreadKind   `json:"kind" firestore:"kind"`
	LastMessage *LastMessage `json:"last_message,omitempty" firestore:"lastMessage"`
	UnreadCount int          `json:"unread_count" firestore:"unreadCount"`
	UpdatedAt   time.Time    `json:"updated_at" firestore:"updatedAt"`
}

func (e *IndexEntry) Clone() *IndexEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.LastMessage != nil {
		lm := *e.LastMessage
		c.LastMessage = &lm
	}
	return &c
}
