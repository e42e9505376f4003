package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adchat/internal/adapter/repository/memory"
	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/internal/usecase"
)

type gateway struct {
	manager  *Manager
	threads  *usecase.ThreadUseCase
	messages *usecase.MessageUseCase
	presence *usecase.PresenceUseCase
	server   *httptest.Server
}

func newGateway(t *testing.T) *gateway {
	t.Helper()

	store := memory.New()
	writer := fanout.NewWriter(store)
	threads := usecase.NewThreadUseCase(store.Threads(), store.Index(), store.Messages(), writer)
	messages := usecase.NewMessageUseCase(store.Threads(), store.Messages(), writer)
	presence := usecase.NewPresenceUseCase(store.Presence(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	manager := NewManager(threads, messages, presence)
	manager.Start(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		manager.Serve(r.URL.Query().Get("uid"), conn)
	}))
	t.Cleanup(server.Close)

	return &gateway{manager: manager, threads: threads, messages: messages, presence: presence, server: server}
}

func (g *gateway) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "?uid=" + uid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *gateway) dmThread(t *testing.T, a, b string) string {
	t.Helper()
	id, err := g.threads.CreateThread(context.Background(), usecase.CreateThreadInput{
		Kind:         entity.ThreadKindDM,
		Participants: []string{a, b},
	})
	require.NoError(t, err)
	return id
}

type testFrame struct {
	Type         string          `json:"type"`
	ID           string          `json:"id"`
	Subscription string          `json:"subscription"`
	Data         json.RawMessage `json:"data"`
	Error        *FrameError     `json:"error"`
}

func send(t *testing.T, conn *websocket.Conn, frame ClientFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// next reads frames until one of type frameType arrives.
func next(t *testing.T, conn *websocket.Conn, frameType string) testFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f testFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == frameType {
			return f
		}
	}
}

func TestConnectionDrivesPresence(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, "alice")

	send(t, conn, ClientFrame{Type: MessageTypePing, ID: "p1"})
	pong := next(t, conn, MessageTypePong)
	assert.Equal(t, "p1", pong.ID)

	online, err := g.presence.GetOnline(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, online)

	conn.Close()
	assert.Eventually(t, func() bool {
		online, err := g.presence.GetOnline(context.Background(), "alice")
		return err == nil && !online
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSecondConnectionKeepsUserOnline(t *testing.T) {
	g := newGateway(t)
	first := g.dial(t, "alice")
	second := g.dial(t, "alice")

	send(t, second, ClientFrame{Type: MessageTypePing})
	next(t, second, MessageTypePong)

	first.Close()
	assert.Eventually(t, func() bool {
		return len(g.manager.ConnectedUsers()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	online, err := g.presence.GetOnline(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestSendMessageReachesMessageSubscription(t *testing.T) {
	g := newGateway(t)
	threadID := g.dmThread(t, "alice", "bob")
	conn := g.dial(t, "alice")

	send(t, conn, ClientFrame{Type: MessageTypeSubscribeMessages, ThreadID: threadID})
	initial := next(t, conn, MessageTypeMessages)
	assert.Equal(t, "messages:"+threadID, initial.Subscription)
	ack := next(t, conn, MessageTypeAck)
	assert.Equal(t, "messages:"+threadID, ack.Subscription)

	send(t, conn, ClientFrame{
		Type:     MessageTypeSendMessage,
		ID:       "m1",
		ThreadID: threadID,
		Message:  &OutgoingMessage{Text: "hello"},
	})

	update := next(t, conn, MessageTypeMessages)
	var messages []*entity.Message
	require.NoError(t, json.Unmarshal(update.Data, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, "alice", messages[0].SenderID)

	sent := next(t, conn, MessageTypeAck)
	assert.Equal(t, "m1", sent.ID)
	var data map[string]string
	require.NoError(t, json.Unmarshal(sent.Data, &data))
	assert.Equal(t, messages[0].ID, data["message_id"])
}

func TestThreadSubscriptionSeesUnreadCount(t *testing.T) {
	g := newGateway(t)
	threadID := g.dmThread(t, "alice", "bob")
	conn := g.dial(t, "bob")

	send(t, conn, ClientFrame{Type: MessageTypeSubscribeThreads})
	next(t, conn, MessageTypeThreads)
	next(t, conn, MessageTypeAck)

	_, err := g.messages.AppendMessage(context.Background(), usecase.AppendMessageInput{
		ThreadID: threadID,
		SenderID: "alice",
		Text:     "hi bob",
	})
	require.NoError(t, err)

	for {
		f := next(t, conn, MessageTypeThreads)
		var threads []*entity.Thread
		require.NoError(t, json.Unmarshal(f.Data, &threads))
		require.Len(t, threads, 1)
		if threads[0].LastMessage != nil {
			assert.Equal(t, "hi bob", threads[0].LastMessage.Text)
			assert.Equal(t, 1, threads[0].UnreadCount["bob"])
			break
		}
	}

	send(t, conn, ClientFrame{Type: MessageTypeMarkRead, ID: "r1", ThreadID: threadID})
	assert.Equal(t, "r1", next(t, conn, MessageTypeAck).ID)

	thread, err := g.threads.GetThread(context.Background(), threadID)
	require.NoError(t, err)
	assert.Equal(t, 0, thread.UnreadCount["bob"])
}

func TestNonParticipantCannotSubscribeToMessages(t *testing.T) {
	g := newGateway(t)
	threadID := g.dmThread(t, "alice", "bob")
	conn := g.dial(t, "mallory")

	send(t, conn, ClientFrame{Type: MessageTypeSubscribeMessages, ID: "s1", ThreadID: threadID})
	f := next(t, conn, MessageTypeError)
	assert.Equal(t, "s1", f.ID)
	require.NotNil(t, f.Error)
	assert.Equal(t, "FORBIDDEN", f.Error.Code)
}

func TestPresenceSubscription(t *testing.T) {
	g := newGateway(t)
	watcher := g.dial(t, "alice")

	send(t, watcher, ClientFrame{Type: MessageTypeSubscribePresence, UserID: "bob", Subscription: "bob"})
	first := next(t, watcher, MessageTypePresence)
	var p entity.Presence
	require.NoError(t, json.Unmarshal(first.Data, &p))
	assert.False(t, p.Online)
	assert.Equal(t, "bob", next(t, watcher, MessageTypeAck).Subscription)

	g.dial(t, "bob")
	for {
		f := next(t, watcher, MessageTypePresence)
		require.NoError(t, json.Unmarshal(f.Data, &p))
		if p.Online {
			break
		}
	}

	send(t, watcher, ClientFrame{Type: MessageTypeUnsubscribe, ID: "u1", Subscription: "bob"})
	assert.Equal(t, "u1", next(t, watcher, MessageTypeAck).ID)
}

func TestBadFrames(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := next(t, conn, MessageTypeError)
	assert.Equal(t, "BAD_REQUEST", f.Error.Code)

	send(t, conn, ClientFrame{Type: "shout", ID: "x"})
	f = next(t, conn, MessageTypeError)
	assert.Equal(t, "x", f.ID)
	assert.Equal(t, "BAD_REQUEST", f.Error.Code)

	send(t, conn, ClientFrame{Type: MessageTypeUnsubscribe, ID: "u", Subscription: "nothing"})
	f = next(t, conn, MessageTypeError)
	assert.Equal(t, "NOT_FOUND", f.Error.Code)

	send(t, conn, ClientFrame{Type: MessageTypeSendMessage, ID: "s"})
	f = next(t, conn, MessageTypeError)
	assert.Equal(t, "BAD_REQUEST", f.Error.Code)
}

func TestThreadSubscriptionSeesTyping(t *testing.T) {
	g := newGateway(t)
	threadID := g.dmThread(t, "alice", "bob")
	bob := g.dial(t, "bob")
	alice := g.dial(t, "alice")

	send(t, bob, ClientFrame{Type: MessageTypeSubscribeThread, ThreadID: threadID})
	initial := next(t, bob, MessageTypeThread)
	assert.Equal(t, "thread:"+threadID, initial.Subscription)
	var thread entity.Thread
	require.NoError(t, json.Unmarshal(initial.Data, &thread))
	assert.False(t, thread.Typing["alice"])
	next(t, bob, MessageTypeAck)

	send(t, alice, ClientFrame{Type: MessageTypeTyping, ID: "t1", ThreadID: threadID, Typing: true})
	assert.Equal(t, "t1", next(t, alice, MessageTypeAck).ID)

	update := next(t, bob, MessageTypeThread)
	require.NoError(t, json.Unmarshal(update.Data, &thread))
	assert.True(t, thread.Typing["alice"])
	assert.False(t, thread.Typing["bob"])
}

func TestNonParticipantCannotSubscribeToThread(t *testing.T) {
	g := newGateway(t)
	threadID := g.dmThread(t, "alice", "bob")
	conn := g.dial(t, "mallory")

	send(t, conn, ClientFrame{Type: MessageTypeSubscribeThread, ThreadID: threadID})
	f := next(t, conn, MessageTypeError)
	require.NotNil(t, f.Error)
	assert.Equal(t, "FORBIDDEN", f.Error.Code)
}

func TestStartWithoutHeartbeat(t *testing.T) {
	for _, every := range []time.Duration{0, -time.Second} {
		store := memory.New()
		writer := fanout.NewWriter(store)
		manager := NewManager(
			usecase.NewThreadUseCase(store.Threads(), store.Index(), store.Messages(), writer),
			usecase.NewMessageUseCase(store.Threads(), store.Messages(), writer),
			usecase.NewPresenceUseCase(store.Presence(), 0),
		).WithHeartbeat(every)

		ctx, cancel := context.WithCancel(context.Background())
		assert.NotPanics(t, func() { manager.Start(ctx) })
		cancel()
	}
}

func newTestClient(t *testing.T) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &Client{
		UserID: "alice",
		Send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}
}

func TestStaleWatchErrorKeepsNewerSubscription(t *testing.T) {
	c := newTestClient(t)

	var firstError func(error)
	var firstStopped, secondStopped atomic.Bool
	c.subscribe("threads", func(onError func(error)) (repository.Unsubscribe, error) {
		firstError = onError
		return func() { firstStopped.Store(true) }, nil
	})
	c.subscribe("threads", func(onError func(error)) (repository.Unsubscribe, error) {
		return func() { secondStopped.Store(true) }, nil
	})
	assert.True(t, firstStopped.Load())

	firstError(assert.AnError)

	c.mu.Lock()
	_, stored := c.subs["threads"]
	c.mu.Unlock()
	assert.True(t, stored)
	assert.Never(t, secondStopped.Load, 100*time.Millisecond, 10*time.Millisecond)

	assert.True(t, c.unsubscribe("threads"))
	assert.True(t, secondStopped.Load())
}

func TestWatchErrorDropsItsOwnSubscription(t *testing.T) {
	c := newTestClient(t)

	var onWatchError func(error)
	var stopped atomic.Bool
	c.subscribe("presence:bob", func(onError func(error)) (repository.Unsubscribe, error) {
		onWatchError = onError
		return func() { stopped.Store(true) }, nil
	})

	onWatchError(assert.AnError)
	assert.Eventually(t, stopped.Load, time.Second, 10*time.Millisecond)
	assert.False(t, c.unsubscribe("presence:bob"))
}

func TestWatchFailingBeforeStoreIsNotKept(t *testing.T) {
	c := newTestClient(t)

	var stopped atomic.Bool
	c.subscribe("messages:dm_1", func(onError func(error)) (repository.Unsubscribe, error) {
		onError(assert.AnError)
		return func() { stopped.Store(true) }, nil
	})

	assert.True(t, stopped.Load())
	assert.False(t, c.unsubscribe("messages:dm_1"))
}
