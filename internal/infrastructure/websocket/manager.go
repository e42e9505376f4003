package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"adchat/internal/domain/repository"
	"adchat/internal/usecase"
	"adchat/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client represents a WebSocket connection client
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	subs   map[string]*subscription
}

// subscription is one named watch of a client. failed is set once its
// watch reported an error, which may happen before it is stored.
type subscription struct {
	stop   repository.Unsubscribe
	failed bool
}

// Manager tracks every open connection and serves the frames they send.
// A user may hold several connections; presence goes offline when the
// last one closes.
type Manager struct {
	clients map[string]map[*Client]struct{}
	mutex   sync.RWMutex

	threads  *usecase.ThreadUseCase
	messages *usecase.MessageUseCase
	presence *usecase.PresenceUseCase

	ctx       context.Context
	heartbeat time.Duration
}

func NewManager(threads *usecase.ThreadUseCase, messages *usecase.MessageUseCase, presence *usecase.PresenceUseCase) *Manager {
	return &Manager{
		clients:   make(map[string]map[*Client]struct{}),
		threads:   threads,
		messages:  messages,
		presence:  presence,
		ctx:       context.Background(),
		heartbeat: time.Minute,
	}
}

// WithHeartbeat sets how often Start refreshes lastSeen for connected users.
// A zero or negative interval turns the refresh off.
func (m *Manager) WithHeartbeat(every time.Duration) *Manager {
	m.heartbeat = every
	return m
}

// Start refreshes the presence of connected users until ctx ends, then
// closes every connection. Connections opened later inherit ctx.
func (m *Manager) Start(ctx context.Context) {
	m.mutex.Lock()
	m.ctx = ctx
	m.mutex.Unlock()

	if m.heartbeat <= 0 {
		log.Printf("WebSocket: presence heartbeat disabled (interval %s)", m.heartbeat)
	}

	go func() {
		// A nil tick never fires.
		var tick <-chan time.Time
		if m.heartbeat > 0 {
			ticker := time.NewTicker(m.heartbeat)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				for _, userID := range m.ConnectedUsers() {
					if err := m.presence.SetOnline(ctx, userID, true); err != nil {
						log.Printf("WebSocket: heartbeat for %s failed: %v", userID, err)
					}
				}

			case <-ctx.Done():
				m.mutex.RLock()
				var all []*Client
				for _, conns := range m.clients {
					for c := range conns {
						all = append(all, c)
					}
				}
				m.mutex.RUnlock()
				for _, c := range all {
					c.Conn.Close()
				}
				return
			}
		}
	}()
}

// Serve registers conn for userID and blocks until the connection closes.
func (m *Manager) Serve(userID string, conn *websocket.Conn) {
	m.mutex.RLock()
	parent := m.ctx
	m.mutex.RUnlock()

	ctx, cancel := context.WithCancel(parent)
	client := &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}

	m.register(client)
	go client.WritePump()
	client.ReadPump(m)
}

func (m *Manager) register(client *Client) {
	m.mutex.Lock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		m.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}
	m.mutex.Unlock()

	if err := m.presence.SetOnline(client.ctx, client.UserID, true); err != nil {
		log.Printf("WebSocket: failed to mark %s online: %v", client.UserID, err)
	}
	log.Printf("Client registered: %s", client.UserID)
}

func (m *Manager) unregister(client *Client) {
	m.mutex.Lock()
	last := false
	if conns, ok := m.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(m.clients, client.UserID)
			last = true
		}
	}
	m.mutex.Unlock()

	client.close()

	if last {
		// The connection context is already cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := m.presence.SetOnline(ctx, client.UserID, false); err != nil {
			log.Printf("WebSocket: failed to mark %s offline: %v", client.UserID, err)
		}
	}
	log.Printf("Client unregistered: %s", client.UserID)
}

// ConnectedUsers lists users holding at least one connection.
func (m *Manager) ConnectedUsers() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	users := make([]string, 0, len(m.clients))
	for userID := range m.clients {
		users = append(users, userID)
	}
	return users
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		m.HandleClientMessage(c, message)
	}
}

// WritePump sends messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("error: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues frame for the write pump. A client that falls a full
// buffer behind is disconnected.
func (c *Client) enqueue(frame ServerFrame) {
	data, err := encodeFrame(frame)
	if err != nil {
		log.Printf("WebSocket: failed to encode %s frame for %s: %v", frame.Type, c.UserID, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.Send <- data:
	default:
		log.Printf("WebSocket: send buffer full for %s, closing", c.UserID)
		c.Conn.Close()
	}
}

// subscribe replaces any subscription called name with the one start
// opens, then acknowledges it. start must route watch errors to onError.
func (c *Client) subscribe(name string, start func(onError func(error)) (repository.Unsubscribe, error)) {
	c.unsubscribe(name)

	sub := &subscription{}
	stop, err := start(c.onWatchError(name, sub))
	if err != nil {
		c.enqueue(errorFrame("", err, map[string]string{"subscription": name}))
		return
	}

	c.mu.Lock()
	if c.closed || sub.failed {
		c.mu.Unlock()
		stop()
		return
	}
	sub.stop = stop
	c.subs[name] = sub
	c.mu.Unlock()

	c.enqueue(ServerFrame{Type: MessageTypeAck, Subscription: name})
}

func (c *Client) unsubscribe(name string) bool {
	c.mu.Lock()
	sub, ok := c.subs[name]
	delete(c.subs, name)
	c.mu.Unlock()

	if ok {
		sub.stop()
	}
	return ok
}

// onWatchError reports a failed watch and drops sub. A newer subscription
// stored under the same name is left alone.
func (c *Client) onWatchError(name string, sub *subscription) func(error) {
	return func(err error) {
		log.Printf("WebSocket: subscription %s of %s failed: %v", name, c.UserID, err)
		c.enqueue(ServerFrame{
			Type:         MessageTypeError,
			Subscription: name,
			Error:        &FrameError{Code: errors.CodeInternal, Message: "Subscription failed"},
		})

		c.mu.Lock()
		sub.failed = true
		current, stored := c.subs[name]
		stored = stored && current == sub
		if stored {
			delete(c.subs, name)
		}
		c.mu.Unlock()

		// The watcher may be delivering this error; stopping it
		// inline would wait on itself.
		if stored {
			go sub.stop()
		}
	}
}

// close stops every subscription and the write pump.
func (c *Client) close() {
	c.cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.Send)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}
