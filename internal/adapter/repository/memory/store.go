// Package memory is an in-process implementation of every store the chat
// service needs. It backs STORE_BACKEND=memory for local development and is
// the store used by the use-case and handler tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/pkg/errors"
)

type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	threads   map[string]*entity.Thread
	index     map[string]map[string]*entity.IndexEntry // userID -> threadID
	messages  map[string]map[string]*entity.Message    // threadID -> messageID
	presence  map[string]*entity.Presence
	tickets   map[string]*entity.Ticket
	commitErr error
	commits   int

	broker *broker
}

func New() *Store {
	return &Store{
		now:      time.Now,
		threads:  make(map[string]*entity.Thread),
		index:    make(map[string]map[string]*entity.IndexEntry),
		messages: make(map[string]map[string]*entity.Message),
		presence: make(map[string]*entity.Presence),
		tickets:  make(map[string]*entity.Ticket),
		broker:   newBroker(),
	}
}

// WithClock replaces the time source used for store-assigned timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// FailCommits makes every following change set Commit fail with err until
// it is called again with nil. Direct message writes are not affected.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	s.commitErr = err
	s.mu.Unlock()
}

// CommitCount is the number of change sets committed successfully.
func (s *Store) CommitCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

func (s *Store) Threads() repository.ThreadRepository    { return &threadRepo{s: s} }
func (s *Store) Index() repository.IndexRepository       { return &indexRepo{s: s} }
func (s *Store) Messages() repository.MessageRepository  { return &messageRepo{s: s} }
func (s *Store) Presence() repository.PresenceRepository { return &presenceRepo{s: s} }
func (s *Store) Tickets() repository.TicketRepository    { return &ticketRepo{s: s} }

type indexKey struct {
	userID   string
	threadID string
}

// Commit stages every write on copies and swaps them in only when all
// writes applied cleanly.
func (s *Store) Commit(ctx context.Context, cs *fanout.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.commitErr != nil {
		err := s.commitErr
		s.mu.Unlock()
		return errors.Internal(fmt.Sprintf("Failed to commit %s", cs.Label()), err)
	}

	stagedThreads := make(map[string]*entity.Thread)
	stagedIndex := make(map[indexKey]*entity.IndexEntry)
	topics := make(map[string]struct{})

	for _, w := range cs.Writes() {
		var err error
		switch w.Ref.Kind {
		case fanout.ThreadDoc:
			err = s.stageThread(stagedThreads, w)
			topics[threadTopic(w.Ref.ThreadID)] = struct{}{}
		case fanout.IndexDoc:
			err = s.stageIndex(stagedIndex, w)
			topics[indexTopic(w.Ref.UserID)] = struct{}{}
		default:
			err = errors.Internal(fmt.Sprintf("Unknown document %q", w.Ref.Path()), nil)
		}
		if err != nil {
			s.mu.Unlock()
			return err
		}
	}

	for id, t := range stagedThreads {
		if t == nil {
			delete(s.threads, id)
		} else {
			s.threads[id] = t
		}
	}
	for key, e := range stagedIndex {
		if e == nil {
			if entries, ok := s.index[key.userID]; ok {
				delete(entries, key.threadID)
			}
			continue
		}
		if s.index[key.userID] == nil {
			s.index[key.userID] = make(map[string]*entity.IndexEntry)
		}
		s.index[key.userID][key.threadID] = e
	}
	s.commits++
	s.mu.Unlock()

	s.broker.publish(topics)
	return nil
}

func (s *Store) stageThread(staged map[string]*entity.Thread, w fanout.Write) error {
	id := w.Ref.ThreadID
	cur, ok := staged[id]
	if !ok {
		cur = s.threads[id].Clone()
	}

	switch w.Op {
	case fanout.OpCreate:
		if cur != nil {
			return errors.Conflict(fmt.Sprintf("Thread %s already exists", id), nil)
		}
		thread, ok := w.Data.(*entity.Thread)
		if !ok {
			return errors.Internal(fmt.Sprintf("Unexpected data %T for %s", w.Data, w.Ref.Path()), nil)
		}
		staged[id] = thread.Clone()
	case fanout.OpUpdate:
		if cur == nil {
			return errors.NotFound("Thread", nil)
		}
		for _, f := range w.Fields {
			if err := applyThreadField(cur, f); err != nil {
				return err
			}
		}
		staged[id] = cur
	case fanout.OpDelete:
		staged[id] = nil
	default:
		return errors.Internal(fmt.Sprintf("Unsupported op %s", w.Op), nil)
	}
	return nil
}

func (s *Store) stageIndex(staged map[indexKey]*entity.IndexEntry, w fanout.Write) error {
	key := indexKey{userID: w.Ref.UserID, threadID: w.Ref.ThreadID}
	cur, ok := staged[key]
	if !ok {
		cur = s.index[key.userID][key.threadID].Clone()
	}

	switch w.Op {
	case fanout.OpCreate:
		if cur != nil {
			return errors.Conflict(fmt.Sprintf("Index entry %s already exists", w.Ref.Path()), nil)
		}
		entry, ok := w.Data.(*entity.IndexEntry)
		if !ok {
			return errors.Internal(fmt.Sprintf("Unexpected data %T for %s", w.Data, w.Ref.Path()), nil)
		}
		staged[key] = entry.Clone()
	case fanout.OpUpdate:
		if cur == nil {
			return errors.NotFound("Index entry", nil)
		}
		for _, f := range w.Fields {
			if err := applyIndexField(cur, f); err != nil {
				return err
			}
		}
		staged[key] = cur
	case fanout.OpDelete:
		staged[key] = nil
	default:
		return errors.Internal(fmt.Sprintf("Unsupported op %s", w.Op), nil)
	}
	return nil
}

func applyThreadField(t *entity.Thread, f fanout.Field) error {
	if len(f.Path) == 0 {
		return errors.Internal("Empty field path", nil)
	}
	f, skip := resolveGuard(f, t.LastMessage)
	if skip {
		return nil
	}
	switch f.Path[0] {
	case entity.FieldLastMessage:
		lm, ok := f.Value.(*entity.LastMessage)
		if !ok {
			return badField(f)
		}
		c := *lm
		t.LastMessage = &c
	case entity.FieldUpdatedAt:
		ts, ok := f.Value.(time.Time)
		if !ok {
			return badField(f)
		}
		t.UpdatedAt = ts
	case entity.FieldUnreadCount:
		if len(f.Path) != 2 {
			return badField(f)
		}
		if t.UnreadCount == nil {
			t.UnreadCount = make(map[string]int)
		}
		n, err := counterValue(t.UnreadCount[f.Path[1]], f)
		if err != nil {
			return err
		}
		t.UnreadCount[f.Path[1]] = n
	case entity.FieldTyping:
		v, ok := f.Value.(bool)
		if !ok || len(f.Path) != 2 {
			return badField(f)
		}
		if t.Typing == nil {
			t.Typing = make(map[string]bool)
		}
		t.Typing[f.Path[1]] = v
	case entity.FieldOnlineStatus:
		v, ok := f.Value.(bool)
		if !ok || len(f.Path) != 2 {
			return badField(f)
		}
		if t.OnlineStatus == nil {
			t.OnlineStatus = make(map[string]bool)
		}
		t.OnlineStatus[f.Path[1]] = v
	default:
		return badField(f)
	}
	return nil
}

func applyIndexField(e *entity.IndexEntry, f fanout.Field) error {
	if len(f.Path) != 1 {
		return badField(f)
	}
	f, skip := resolveGuard(f, e.LastMessage)
	if skip {
		return nil
	}
	switch f.Path[0] {
	case entity.FieldLastMessage:
		lm, ok := f.Value.(*entity.LastMessage)
		if !ok {
			return badField(f)
		}
		c := *lm
		e.LastMessage = &c
	case entity.FieldUpdatedAt:
		ts, ok := f.Value.(time.Time)
		if !ok {
			return badField(f)
		}
		e.UpdatedAt = ts
	case entity.FieldUnreadCount:
		n, err := counterValue(e.UnreadCount, f)
		if err != nil {
			return err
		}
		e.UnreadCount = n
	default:
		return badField(f)
	}
	return nil
}

// resolveGuard unwraps an IfNewer value. skip is true when the stored
// summary is more recent than the guarded write.
func resolveGuard(f fanout.Field, stored *entity.LastMessage) (fanout.Field, bool) {
	guard, ok := f.Value.(fanout.IfNewer)
	if !ok {
		return f, false
	}
	var at time.Time
	if stored != nil {
		at = stored.CreatedAt
	}
	if !guard.Applies(at) {
		return f, true
	}
	f.Value = guard.Value
	return f, false
}

func counterValue(current int, f fanout.Field) (int, error) {
	switch v := f.Value.(type) {
	case fanout.Increment:
		return current + v.N, nil
	case int:
		return v, nil
	}
	return 0, badField(f)
}

func badField(f fanout.Field) error {
	return errors.Internal(fmt.Sprintf("Unsupported field update %v = %T", f.Path, f.Value), nil)
}
