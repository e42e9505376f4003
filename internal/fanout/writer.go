package fanout

import (
	"context"
	"time"

	"adchat/internal/domain/entity"
)

// Writer is the only component allowed to mutate thread records and index
// entries. Each method is exactly one Commit.
type Writer struct {
	committer Committer
	now       func() time.Time
}

func NewWriter(committer Committer) *Writer {
	return &Writer{
		committer: committer,
		now:       time.Now,
	}
}

// WithClock replaces the time source used for new thread timestamps.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// CreateThread zero-initializes the per-participant maps of thread, stamps
// it, and commits it together with one empty index entry per participant.
func (w *Writer) CreateThread(ctx context.Context, thread *entity.Thread) error {
	newThreadRecord(thread, w.now())
	return w.committer.Commit(ctx, createThreadSet(thread))
}

// ApplyMessage updates the thread summary and every participant's index
// entry for a message that is already in the log.
func (w *Writer) ApplyMessage(ctx context.Context, thread *entity.Thread, message *entity.Message) error {
	return w.committer.Commit(ctx, messageSummarySet(thread, message))
}

// MarkThreadRead zeroes userID's unread counter on the thread and on the
// user's index entry.
func (w *Writer) MarkThreadRead(ctx context.Context, threadID, userID string) error {
	return w.committer.Commit(ctx, markReadSet(threadID, userID))
}

func (w *Writer) SetTyping(ctx context.Context, threadID, userID string, typing bool) error {
	return w.committer.Commit(ctx, typingSet(threadID, userID, typing))
}

// DeleteThread removes the thread and every participant's index entry.
func (w *Writer) DeleteThread(ctx context.Context, thread *entity.Thread) error {
	return w.committer.Commit(ctx, deleteThreadSet(thread))
}
