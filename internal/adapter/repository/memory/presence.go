package memory

import (
	"context"
	"time"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

type presenceRepo struct {
	s *Store
}

func (r *presenceRepo) Upsert(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	p, ok := r.s.presence[userID]
	if !ok {
		p = &entity.Presence{UserID: userID}
		r.s.presence[userID] = p
	}
	p.Online = online
	p.LastSeen = lastSeen
	r.s.mu.Unlock()

	r.s.broker.publish(topicSet(presenceTopic(userID)))
	return nil
}

func (r *presenceRepo) Get(ctx context.Context, userID string) (*entity.Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := r.s.presenceOf(userID)
	if p == nil {
		return nil, errors.NotFound("Presence", nil)
	}
	return p, nil
}

func (r *presenceRepo) Watch(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) (repository.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.s.watch(ctx, presenceTopic(userID), func() {
		onChange(r.s.presenceOf(userID))
	}), nil
}

func (s *Store) presenceOf(userID string) *entity.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[userID]
	if !ok {
		return nil
	}
	c := *p
	return &c
}
