package repository

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

type redisPresenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresenceRepository stores presence as one hash per user and
// announces changes on a per-user channel. A positive ttl expires records
// that stop receiving updates, which reads back as offline.
func NewRedisPresenceRepository(client *redis.Client, ttl time.Duration) repository.PresenceRepository {
	return &redisPresenceRepository{
		client: client,
		ttl:    ttl,
	}
}

// NewRedisClient accepts either a redis:// URL or a bare host:port.
func NewRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		url = "localhost:6379"
		log.Println("REDIS_URL not set, using localhost:6379")
	}
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr: url,
		DB:   0,
	}), nil
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

func presenceChannel(userID string) string {
	return "presence_events:" + userID
}

func (r *redisPresenceRepository) Upsert(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	key := presenceKey(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "online", strconv.FormatBool(online), "lastSeen", lastSeen.UnixMilli())
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.Publish(ctx, presenceChannel(userID), strconv.FormatBool(online))
		return nil
	})
	if err != nil {
		return errors.Internal("Failed to update presence", err)
	}
	return nil
}

func (r *redisPresenceRepository) Get(ctx context.Context, userID string) (*entity.Presence, error) {
	p, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.NotFound("Presence", nil)
	}
	return p, nil
}

func (r *redisPresenceRepository) Watch(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) (repository.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := r.client.Subscribe(ctx, presenceChannel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		sub.Close()
		return nil, errors.Internal("Failed to subscribe to presence", err)
	}

	p, err := r.load(ctx, userID)
	if err != nil {
		cancel()
		sub.Close()
		return nil, err
	}
	onChange(p)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				p, err := r.load(ctx, userID)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("Watch presence/%s Error: %v", userID, err)
					if onError != nil {
						onError(err)
					}
					return
				}
				onChange(p)
			}
		}
	}()

	return onceFunc(cancel), nil
}

// load returns nil when the user has no record.
func (r *redisPresenceRepository) load(ctx context.Context, userID string) (*entity.Presence, error) {
	fields, err := r.client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, errors.Internal("Failed to get presence", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	online, _ := strconv.ParseBool(fields["online"])
	millis, _ := strconv.ParseInt(fields["lastSeen"], 10, 64)
	return &entity.Presence{
		UserID:   userID,
		Online:   online,
		LastSeen: time.UnixMilli(millis).UTC(),
	}, nil
}
