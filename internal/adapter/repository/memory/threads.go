package memory

import (
	"context"
	"sort"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

type threadRepo struct {
	s *Store
}

func (r *threadRepo) GetByID(ctx context.Context, id string) (*entity.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	thread, ok := r.s.threads[id]
	if !ok {
		return nil, errors.NotFound("Thread", nil)
	}
	return thread.Clone(), nil
}

func (r *threadRepo) Watch(ctx context.Context, id string, onChange func(*entity.Thread), onError func(error)) (repository.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.s.watch(ctx, threadTopic(id), func() {
		r.s.mu.RLock()
		thread := r.s.threads[id].Clone()
		r.s.mu.RUnlock()
		onChange(thread)
	}), nil
}

type indexRepo struct {
	s *Store
}

func (r *indexRepo) ListByUser(ctx context.Context, userID string, kind entity.ThreadKind) ([]*entity.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.s.indexEntries(userID, kind), nil
}

func (r *indexRepo) WatchByUser(ctx context.Context, userID string, kind entity.ThreadKind, onChange func([]*entity.IndexEntry), onError func(error)) (repository.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.s.watch(ctx, indexTopic(userID), func() {
		onChange(r.s.indexEntries(userID, kind))
	}), nil
}

func (s *Store) indexEntries(userID string, kind entity.ThreadKind) []*entity.IndexEntry {
	s.mu.RLock()
	entries := make([]*entity.IndexEntry, 0, len(s.index[userID]))
	for _, e := range s.index[userID] {
		if kind != "" && e.Kind != kind {
			continue
		}
		entries = append(entries, e.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].ThreadID > entries[j].ThreadID
	})
	return entries
}
