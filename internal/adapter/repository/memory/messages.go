package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

type messageRepo struct {
	s *Store
}

func (r *messageRepo) Append(ctx context.Context, message *entity.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Internal("Failed to generate message id", err)
	}

	r.s.mu.Lock()
	message.ID = id.String()
	message.CreatedAt = r.s.now()
	message.TimeStamp = message.CreatedAt.UnixMilli()
	if message.ReadBy == nil {
		message.ReadBy = []string{}
	}
	if r.s.messages[message.ThreadID] == nil {
		r.s.messages[message.ThreadID] = make(map[string]*entity.Message)
	}
	r.s.messages[message.ThreadID][message.ID] = message.Clone()
	r.s.mu.Unlock()

	r.s.broker.publish(topicSet(messagesTopic(message.ThreadID)))
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, threadID, messageID string) (*entity.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	msg, ok := r.s.messages[threadID][messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return msg.Clone(), nil
}

func (r *messageRepo) ListLatest(ctx context.Context, threadID string, limit int) ([]*entity.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.s.latestMessages(threadID, limit), nil
}

func (r *messageRepo) WatchLatest(ctx context.Context, threadID string, limit int, onChange func([]*entity.Message), onError func(error)) (repository.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.s.watch(ctx, messagesTopic(threadID), func() {
		onChange(r.s.latestMessages(threadID, limit))
	}), nil
}

func (r *messageRepo) MarkRead(ctx context.Context, threadID, messageID, userID string) error {
	return r.s.updateMessage(ctx, threadID, messageID, func(m *entity.Message) {
		m.IsRead = true
		for _, id := range m.ReadBy {
			if id == userID {
				return
			}
		}
		m.ReadBy = append(m.ReadBy, userID)
	})
}

func (r *messageRepo) UpdateText(ctx context.Context, threadID, messageID, text string) error {
	return r.s.updateMessage(ctx, threadID, messageID, func(m *entity.Message) {
		m.Text = text
		m.IsEdited = true
	})
}

func (r *messageRepo) Delete(ctx context.Context, threadID, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	if _, ok := r.s.messages[threadID][messageID]; !ok {
		r.s.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	delete(r.s.messages[threadID], messageID)
	r.s.mu.Unlock()

	r.s.broker.publish(topicSet(messagesTopic(threadID)))
	return nil
}

func (r *messageRepo) DeleteAllForThread(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	delete(r.s.messages, threadID)
	r.s.mu.Unlock()

	r.s.broker.publish(topicSet(messagesTopic(threadID)))
	return nil
}

func (s *Store) updateMessage(ctx context.Context, threadID, messageID string, mutate func(*entity.Message)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	msg, ok := s.messages[threadID][messageID]
	if !ok {
		s.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	mutate(msg)
	s.mu.Unlock()

	s.broker.publish(topicSet(messagesTopic(threadID)))
	return nil
}

// latestMessages returns the newest limit messages of the thread, newest
// first. A non-positive limit returns everything.
func (s *Store) latestMessages(threadID string, limit int) []*entity.Message {
	s.mu.RLock()
	msgs := make([]*entity.Message, 0, len(s.messages[threadID]))
	for _, m := range s.messages[threadID] {
		msgs = append(msgs, m.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool {
		return msgs[j].Before(msgs[i])
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs
}

func topicSet(topics ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return set
}
