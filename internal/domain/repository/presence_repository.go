package repository

import (
	"context"
	"time"

	"adchat/internal/domain/entity"
)

type PresenceRepository interface {
	// Upsert merges online and lastSeen into the user's record, creating it
	// when missing. Other fields are left untouched.
	Upsert(ctx context.Context, userID string, online bool, lastSeen time.Time) error
	// Get returns NOT_FOUND when the user never reported presence.
	Get(ctx context.Context, userID string) (*entity.Presence, error)
	// Watch calls onChange with the current record (nil when absent) and
	// again after every update.
	Watch(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) (Unsubscribe, error)
}
