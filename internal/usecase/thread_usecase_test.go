package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/internal/infrastructure/ratelimit"
	apperrors "adchat/pkg/errors"
)

func TestCreateThreadPreconditions(t *testing.T) {
	env := newTestEnv()

	cases := []struct {
		name  string
		input CreateThreadInput
		code  string
	}{
		{"no participants", CreateThreadInput{Kind: entity.ThreadKindDM}, apperrors.CodeBadRequest},
		{"duplicate participant", CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "a"}}, apperrors.CodeBadRequest},
		{"empty participant", CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", ""}}, apperrors.CodeBadRequest},
		{"bad kind", CreateThreadInput{Kind: "group", Participants: []string{"a", "b"}}, apperrors.CodeBadRequest},
		{"creator outside", CreateThreadInput{CreatorID: "c", Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}}, apperrors.CodeForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.threads.CreateThread(ctx, tc.input)
			assert.True(t, apperrors.Is(err, tc.code), "got %v", err)
		})
	}
	assert.Equal(t, 0, env.store.CommitCount())
}

func TestCreateThreadInitializesRecord(t *testing.T) {
	env := newTestEnv()

	id, err := env.threads.CreateThread(ctx, CreateThreadInput{
		Kind:         entity.ThreadKindAd,
		Participants: []string{"buyer", "seller"},
		ParticipantDetails: map[string]entity.ParticipantDetail{
			"seller": {Name: "Seller", Verified: true},
		},
		Title: "Bike",
		Refs:  entity.ThreadRefs{AdID: "ad-42"},
	})
	require.NoError(t, err)

	kind, ok := entity.KindFromID(id)
	require.True(t, ok)
	assert.Equal(t, entity.ThreadKindAd, kind)

	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"buyer": 0, "seller": 0}, thread.UnreadCount)
	assert.Equal(t, map[string]bool{"buyer": false, "seller": false}, thread.Typing)
	assert.Nil(t, thread.LastMessage)
	assert.Equal(t, "ad-42", thread.Refs.AdID)
	assert.True(t, thread.ParticipantDetails["seller"].Verified)

	for _, user := range []string{"buyer", "seller"} {
		entries, err := env.store.Index().ListByUser(ctx, user, "")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, id, entries[0].ThreadID)
	}
}

func TestGetThreadMissing(t *testing.T) {
	env := newTestEnv()
	_, err := env.threads.GetThread(ctx, "dm_nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListThreadsForUserFiltersKindAndSorts(t *testing.T) {
	env := newTestEnv()

	dm, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)
	ad, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindAd, Participants: []string{"a", "c"}})
	require.NoError(t, err)

	// A message in the dm moves it to the top.
	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: dm, SenderID: "b", Text: "hi"})
	require.NoError(t, err)

	threads, err := env.threads.ListThreadsForUser(ctx, "a", "")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, dm, threads[0].ID)
	assert.Equal(t, ad, threads[1].ID)

	threads, err = env.threads.ListThreadsForUser(ctx, "a", entity.ThreadKindAd)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, ad, threads[0].ID)

	_, err = env.threads.ListThreadsForUser(ctx, "a", "bogus")
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
}

// danglingThreads serves GetByID from the store but hides the listed ids, as
// if the thread had been deleted after the index was read.
type danglingThreads struct {
	env    *testEnv
	hidden map[string]bool
	err    error
}

func (d *danglingThreads) GetByID(ctx context.Context, id string) (*entity.Thread, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.hidden[id] {
		return nil, apperrors.NotFound("Thread", nil)
	}
	return d.env.store.Threads().GetByID(ctx, id)
}

func (d *danglingThreads) Watch(ctx context.Context, id string, onChange func(*entity.Thread), onError func(error)) (repository.Unsubscribe, error) {
	return d.env.store.Threads().Watch(ctx, id, onChange, onError)
}

func TestResolveThreadsSkipsMissing(t *testing.T) {
	env := newTestEnv()
	keep, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)
	gone, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "c"}})
	require.NoError(t, err)

	repo := &danglingThreads{env: env, hidden: map[string]bool{gone: true}}
	uc := NewThreadUseCase(repo, env.store.Index(), env.store.Messages(), fanout.NewWriter(env.store))

	entries, err := env.store.Index().ListByUser(ctx, "a", "")
	require.NoError(t, err)

	results, err := uc.ResolveThreads(ctx, entries)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Entry.ThreadID == gone {
			assert.True(t, r.Skipped)
			assert.Nil(t, r.Thread)
		} else {
			assert.False(t, r.Skipped)
			assert.Equal(t, keep, r.Thread.ID)
		}
	}

	threads, err := uc.ListThreadsForUser(ctx, "a", "")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, keep, threads[0].ID)
}

func TestResolveThreadsFailsOnStoreError(t *testing.T) {
	env := newTestEnv()
	_, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)

	boom := apperrors.Internal("Failed to get thread", errors.New("unavailable"))
	uc := NewThreadUseCase(&danglingThreads{env: env, err: boom}, env.store.Index(), env.store.Messages(), fanout.NewWriter(env.store))

	_, err = uc.ListThreadsForUser(ctx, "a", "")
	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
}

func TestSubscribeThreadsForUser(t *testing.T) {
	env := newTestEnv()
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var lists [][]*entity.Thread
	unsubscribe, err := env.threads.SubscribeThreadsForUser(subCtx, "a", "", func(threads []*entity.Thread) {
		mu.Lock()
		lists = append(lists, threads)
		mu.Unlock()
	}, func(err error) { t.Errorf("unexpected error: %v", err) })
	require.NoError(t, err)
	defer unsubscribe()

	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)
	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "b", Text: "yo"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lists, 3)
	assert.Empty(t, lists[0])
	require.Len(t, lists[2], 1)
	assert.Equal(t, "yo", lists[2][0].LastMessage.Text)
	assert.Equal(t, 1, lists[2][0].UnreadCount["a"])
}

func TestDeleteThreadRemovesIndexAndKeepsMessages(t *testing.T) {
	env := newTestEnv()
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)
	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "bye"})
	require.NoError(t, err)

	require.NoError(t, env.threads.DeleteThread(ctx, id))

	_, err = env.threads.GetThread(ctx, id)
	assert.True(t, apperrors.IsNotFound(err))
	for _, user := range []string{"a", "b"} {
		entries, err := env.store.Index().ListByUser(ctx, user, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	}

	msgs, err := env.store.Messages().ListLatest(ctx, id, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	assert.True(t, apperrors.IsNotFound(env.threads.DeleteThread(ctx, id)))
}

func TestDeleteThreadCascade(t *testing.T) {
	env := newTestEnv()
	env.threads.WithCascadeDelete(true)
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)
	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "bye"})
	require.NoError(t, err)

	require.NoError(t, env.threads.DeleteThread(ctx, id))

	msgs, err := env.store.Messages().ListLatest(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSetTyping(t *testing.T) {
	env := newTestEnv()
	env.threads.WithRateLimiter(ratelimit.NewRateLimiterWithLimits(map[string]ratelimit.Limit{
		ratelimit.ActionTyping: {Burst: 1, Refill: 1, Every: time.Hour},
	}))
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)

	require.NoError(t, env.threads.SetTyping(ctx, id, "a", true))
	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.True(t, thread.Typing["a"])
	assert.False(t, thread.Typing["b"])

	err = env.threads.SetTyping(ctx, id, "a", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeTooManyRequests))

	// Clearing the flag is never limited.
	require.NoError(t, env.threads.SetTyping(ctx, id, "a", false))

	err = env.threads.SetTyping(ctx, id, "stranger", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestSubscribeThreadSeesTyping(t *testing.T) {
	env := newTestEnv()
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var seen []*entity.Thread
	unsubscribe, err := env.threads.SubscribeThread(subCtx, id, "b", func(thread *entity.Thread) {
		mu.Lock()
		seen = append(seen, thread)
		mu.Unlock()
	}, func(err error) { t.Errorf("unexpected error: %v", err) })
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, env.threads.SetTyping(ctx, id, "a", true))
	require.NoError(t, env.threads.DeleteThread(ctx, id))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.False(t, seen[0].Typing["a"])
	assert.True(t, seen[1].Typing["a"])
	assert.Nil(t, seen[2])
}

func TestSubscribeThreadRequiresParticipant(t *testing.T) {
	env := newTestEnv()
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{"a", "b"}})
	require.NoError(t, err)

	_, err = env.threads.SubscribeThread(ctx, id, "stranger", func(*entity.Thread) {}, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = env.threads.SubscribeThread(ctx, "dm_missing", "a", func(*entity.Thread) {}, nil)
	assert.True(t, apperrors.IsNotFound(err))
}
