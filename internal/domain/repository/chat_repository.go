package repository

import (
	"context"

	"adchat/internal/domain/entity"
)

// Unsubscribe stops a watch. It is safe to call more than once.
type Unsubscribe func()

// ThreadRepository reads canonical thread records. Writes go through the
// fan-out writer only.
type ThreadRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Thread, error)
	// Watch calls onChange with the thread record after every change,
	// starting with the current state. A deleted or missing thread is
	// delivered as nil.
	Watch(ctx context.Context, id string, onChange func(*entity.Thread), onError func(error)) (Unsubscribe, error)
}

// IndexRepository reads the per-user thread index. There is deliberately no
// write method: index entries are derived copies maintained by fan-out.
type IndexRepository interface {
	// ListByUser returns the user's entries ordered by updatedAt descending.
	// An empty kind returns every kind.
	ListByUser(ctx context.Context, userID string, kind entity.ThreadKind) ([]*entity.IndexEntry, error)
	// WatchByUser calls onChange with the full ordered entry list after
	// every change to the user's index, starting with the current state.
	WatchByUser(ctx context.Context, userID string, kind entity.ThreadKind, onChange func([]*entity.IndexEntry), onError func(error)) (Unsubscribe, error)
}

type MessageRepository interface {
	// Append stores a message, assigning its id and timestamps.
	Append(ctx context.Context, message *entity.Message) error
	GetByID(ctx context.Context, threadID, messageID string) (*entity.Message, error)
	// ListLatest returns up to limit of the newest messages, newest first.
	ListLatest(ctx context.Context, threadID string, limit int) ([]*entity.Message, error)
	// WatchLatest calls onChange with the ListLatest window on every change.
	WatchLatest(ctx context.Context, threadID string, limit int, onChange func([]*entity.Message), onError func(error)) (Unsubscribe, error)
	MarkRead(ctx context.Context, threadID, messageID, userID string) error
	UpdateText(ctx context.Context, threadID, messageID, text string) error
	Delete(ctx context.Context, threadID, messageID string) error
	DeleteAllForThread(ctx context.Context, threadID string) error
}
