package usecase

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adchat/internal/domain/entity"
	"adchat/internal/infrastructure/ratelimit"
	apperrors "adchat/pkg/errors"
)

func createDM(t *testing.T, env *testEnv, a, b string) string {
	t.Helper()
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindDM, Participants: []string{a, b}})
	require.NoError(t, err)
	return id
}

func indexEntry(t *testing.T, env *testEnv, userID, threadID string) *entity.IndexEntry {
	t.Helper()
	entries, err := env.store.Index().ListByUser(ctx, userID, "")
	require.NoError(t, err)
	for _, e := range entries {
		if e.ThreadID == threadID {
			return e
		}
	}
	t.Fatalf("no index entry for %s/%s", userID, threadID)
	return nil
}

// assertIndexMirrorsThread checks that every participant's entry carries the
// thread's counter and last message.
func assertIndexMirrorsThread(t *testing.T, env *testEnv, threadID string) {
	t.Helper()
	thread, err := env.threads.GetThread(ctx, threadID)
	require.NoError(t, err)
	for _, p := range thread.Participants {
		e := indexEntry(t, env, p, threadID)
		assert.Equal(t, thread.UnreadCount[p], e.UnreadCount, "unread of %s", p)
		assert.Equal(t, thread.LastMessage, e.LastMessage, "lastMessage of %s", p)
	}
}

func TestDirectMessageHelloScenario(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "A", "B")

	_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "A", Text: "hello"})
	require.NoError(t, err)

	b := indexEntry(t, env, "B", id)
	assert.Equal(t, 1, b.UnreadCount)
	require.NotNil(t, b.LastMessage)
	assert.Equal(t, "hello", b.LastMessage.Text)
	assert.Equal(t, 0, indexEntry(t, env, "A", id).UnreadCount)
	assertIndexMirrorsThread(t, env, id)

	require.NoError(t, env.messages.MarkThreadAsRead(ctx, id, "B"))
	assert.Equal(t, 0, indexEntry(t, env, "B", id).UnreadCount)
	assertIndexMirrorsThread(t, env, id)
}

func TestUnreadConservation(t *testing.T) {
	env := newTestEnv()
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindAd, Participants: []string{"a", "b", "c"}})
	require.NoError(t, err)

	send := func(sender string) {
		_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: sender, Text: "m"})
		require.NoError(t, err)
	}
	send("a")
	send("b")
	send("a")
	require.NoError(t, env.messages.MarkThreadAsRead(ctx, id, "c"))
	send("b")

	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, thread.UnreadCount["a"]) // b, b
	assert.Equal(t, 2, thread.UnreadCount["b"]) // a, a
	assert.Equal(t, 1, thread.UnreadCount["c"]) // b after the read
	assertIndexMirrorsThread(t, env, id)
}

func TestMarkThreadAsReadIsIdempotent(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")
	_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "x"})
	require.NoError(t, err)

	require.NoError(t, env.messages.MarkThreadAsRead(ctx, id, "b"))
	commits := env.store.CommitCount()
	require.NoError(t, env.messages.MarkThreadAsRead(ctx, id, "b"))
	assert.Equal(t, commits, env.store.CommitCount(), "second call must not write")

	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, thread.UnreadCount["b"])
}

func TestListMessagesReturnsLatestWindowAscending(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")
	for i := 0; i < 7; i++ {
		_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	msgs, err := env.messages.ListMessages(ctx, id, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m4", "m5", "m6"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text})

	msgs, err = env.messages.ListMessages(ctx, id, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 7)
	assert.Equal(t, "m0", msgs[0].Text)
	assert.Equal(t, "m6", msgs[6].Text)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].Before(msgs[i]))
	}
}

func TestSubscribeMessagesAscending(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")

	var mu sync.Mutex
	var last []*entity.Message
	unsubscribe, err := env.messages.SubscribeMessages(ctx, id, 2, func(msgs []*entity.Message) {
		mu.Lock()
		last = msgs
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer unsubscribe()

	for _, text := range []string{"one", "two", "three"} {
		_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "b", Text: text})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, last, 2)
	assert.Equal(t, "two", last[0].Text)
	assert.Equal(t, "three", last[1].Text)
}

func TestConcurrentSendersLoseNoIncrements(t *testing.T) {
	env := newTestEnv()
	id, err := env.threads.CreateThread(ctx, CreateThreadInput{Kind: entity.ThreadKindAd, Participants: []string{"s1", "s2", "offline"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, sender := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: sender, Text: "hi"})
			errs <- err
		}(sender)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, thread.UnreadCount["offline"])
	assert.Equal(t, 1, thread.UnreadCount["s1"])
	assert.Equal(t, 1, thread.UnreadCount["s2"])
	assert.Equal(t, 2, indexEntry(t, env, "offline", id).UnreadCount)
}

func TestAppendMessageValidation(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")

	_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: "dm_missing", SenderID: "a", Text: "x"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "c", Text: "x"})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Type: "sticker", Text: "x"})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Type: entity.MessageTypeLocation})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "   "})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
}

func TestLocationMessageSummaryPlaceholder(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")

	_, err := env.messages.AppendMessage(ctx, AppendMessageInput{
		ThreadID:    id,
		SenderID:    "a",
		Type:        entity.MessageTypeLocation,
		Coordinates: &entity.Coordinates{Lat: 52.5, Lng: 13.4},
	})
	require.NoError(t, err)

	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Location", thread.LastMessage.Text)
	assert.Equal(t, entity.MessageTypeLocation, thread.LastMessage.Type)
}

func TestAppendMessageSummaryFailureKeepsMessage(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")
	boom := errors.New("unavailable")
	env.store.FailCommits(boom)

	msgID, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, msgID)

	env.store.FailCommits(nil)
	_, err = env.messages.GetMessage(ctx, id, msgID)
	require.NoError(t, err)

	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, thread.LastMessage)
	assert.Equal(t, 0, thread.UnreadCount["b"])
}

func TestEditAndDeleteLeaveSummaryAlone(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")
	msgID, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "first"})
	require.NoError(t, err)

	require.NoError(t, env.messages.EditMessage(ctx, id, msgID, "edited"))
	msg, err := env.messages.GetMessage(ctx, id, msgID)
	require.NoError(t, err)
	assert.Equal(t, "edited", msg.Text)
	assert.True(t, msg.IsEdited)

	assert.True(t, apperrors.Is(env.messages.EditMessage(ctx, id, msgID, ""), apperrors.CodeBadRequest))

	require.NoError(t, env.messages.DeleteMessage(ctx, id, msgID))
	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", thread.LastMessage.Text)
}

func TestMarkAsReadDoesNotTouchCounters(t *testing.T) {
	env := newTestEnv()
	id := createDM(t, env, "a", "b")
	msgID, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "x"})
	require.NoError(t, err)

	require.NoError(t, env.messages.MarkAsRead(ctx, id, msgID, "b"))
	msg, err := env.messages.GetMessage(ctx, id, msgID)
	require.NoError(t, err)
	assert.True(t, msg.IsRead)
	assert.Contains(t, msg.ReadBy, "b")

	thread, err := env.threads.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, thread.UnreadCount["b"])
}

func TestAppendMessageRateLimited(t *testing.T) {
	env := newTestEnv()
	env.messages.WithRateLimiter(ratelimit.NewRateLimiterWithLimits(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {Burst: 2, Refill: 1, Every: time.Hour},
	}))
	id := createDM(t, env, "a", "b")

	for i := 0; i < 2; i++ {
		_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "x"})
		require.NoError(t, err)
	}
	_, err := env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "a", Text: "x"})
	assert.True(t, apperrors.Is(err, apperrors.CodeTooManyRequests))

	_, err = env.messages.AppendMessage(ctx, AppendMessageInput{ThreadID: id, SenderID: "b", Text: "x"})
	assert.NoError(t, err)
}
