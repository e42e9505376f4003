package websocket

import (
	"encoding/json"
	"log"
	"time"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/usecase"
	"adchat/pkg/errors"
)

// Client frame types
const (
	MessageTypeSubscribeThreads  = "subscribe_threads"
	MessageTypeSubscribeThread   = "subscribe_thread"
	MessageTypeSubscribeMessages = "subscribe_messages"
	MessageTypeSubscribePresence = "subscribe_presence"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypeTyping            = "typing"
	MessageTypeMarkRead          = "mark_read"
	MessageTypeSendMessage       = "send_message"
	MessageTypePing              = "ping"
)

// Server frame types
const (
	MessageTypeThreads  = "threads"
	MessageTypeThread   = "thread"
	MessageTypeMessages = "messages"
	MessageTypePresence = "presence"
	MessageTypeAck      = "ack"
	MessageTypeError    = "error"
	MessageTypePong     = "pong"
)

// ClientFrame is a request sent by a connected client. ID is echoed back on
// the ack or error it produces. Subscription names a subscription; when
// empty a name is derived from the frame.
type ClientFrame struct {
	Type         string           `json:"type"`
	ID           string           `json:"id,omitempty"`
	Subscription string           `json:"subscription,omitempty"`
	ThreadID     string           `json:"thread_id,omitempty"`
	UserID       string           `json:"user_id,omitempty"`
	Kind         string           `json:"kind,omitempty"`
	Limit        int              `json:"limit,omitempty"`
	Typing       bool             `json:"typing,omitempty"`
	MessageID    string           `json:"message_id,omitempty"`
	Message      *OutgoingMessage `json:"message,omitempty"`
}

type OutgoingMessage struct {
	Text        string              `json:"text"`
	Type        string              `json:"type,omitempty"`
	UserImage   string              `json:"user_image,omitempty"`
	Coordinates *entity.Coordinates `json:"coordinates,omitempty"`
	FileURL     string              `json:"file_url,omitempty"`
}

type ServerFrame struct {
	Type         string      `json:"type"`
	ID           string      `json:"id,omitempty"`
	Subscription string      `json:"subscription,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Error        *FrameError `json:"error,omitempty"`
	Timestamp    string      `json:"timestamp"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleClientMessage processes one frame read from client.
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(messageBytes, &frame); err != nil {
		log.Printf("WebSocket: Failed to unmarshal message from client %s: %v", client.UserID, err)
		m.sendError(client, "", errors.BadRequest("Invalid message format", err))
		return
	}

	switch frame.Type {
	case MessageTypePing:
		m.handlePing(client, frame)

	case MessageTypeSubscribeThreads:
		m.handleSubscribeThreads(client, frame)

	case MessageTypeSubscribeThread:
		m.handleSubscribeThread(client, frame)

	case MessageTypeSubscribeMessages:
		m.handleSubscribeMessages(client, frame)

	case MessageTypeSubscribePresence:
		m.handleSubscribePresence(client, frame)

	case MessageTypeUnsubscribe:
		m.handleUnsubscribe(client, frame)

	case MessageTypeTyping:
		m.handleTyping(client, frame)

	case MessageTypeMarkRead:
		m.handleMarkRead(client, frame)

	case MessageTypeSendMessage:
		m.handleSendMessage(client, frame)

	default:
		log.Printf("WebSocket: Unknown message type '%s' from client %s", frame.Type, client.UserID)
		m.sendError(client, frame.ID, errors.BadRequest("Unknown message type", nil))
	}
}

// handlePing answers with pong and refreshes the user's lastSeen.
func (m *Manager) handlePing(client *Client, frame ClientFrame) {
	if err := m.presence.SetOnline(client.ctx, client.UserID, true); err != nil {
		log.Printf("WebSocket: heartbeat for %s failed: %v", client.UserID, err)
	}
	client.enqueue(ServerFrame{Type: MessageTypePong, ID: frame.ID})
}

func (m *Manager) handleSubscribeThreads(client *Client, frame ClientFrame) {
	name := subscriptionName(frame, "threads")
	kind := entity.ThreadKind(frame.Kind)

	client.subscribe(name, func(onError func(error)) (repository.Unsubscribe, error) {
		return m.threads.SubscribeThreadsForUser(client.ctx, client.UserID, kind, func(threads []*entity.Thread) {
			client.enqueue(ServerFrame{Type: MessageTypeThreads, Subscription: name, Data: threads})
		}, onError)
	})
}

// handleSubscribeThread streams one thread record, so typing flags and
// unread counters render live.
func (m *Manager) handleSubscribeThread(client *Client, frame ClientFrame) {
	if frame.ThreadID == "" {
		m.sendError(client, frame.ID, errors.BadRequest("thread_id is required", nil))
		return
	}

	name := subscriptionName(frame, "thread:"+frame.ThreadID)
	client.subscribe(name, func(onError func(error)) (repository.Unsubscribe, error) {
		return m.threads.SubscribeThread(client.ctx, frame.ThreadID, client.UserID, func(thread *entity.Thread) {
			client.enqueue(ServerFrame{Type: MessageTypeThread, Subscription: name, Data: thread})
		}, onError)
	})
}

func (m *Manager) handleSubscribeMessages(client *Client, frame ClientFrame) {
	if frame.ThreadID == "" {
		m.sendError(client, frame.ID, errors.BadRequest("thread_id is required", nil))
		return
	}
	if _, err := m.threads.GetThreadForUser(client.ctx, frame.ThreadID, client.UserID); err != nil {
		m.sendError(client, frame.ID, err)
		return
	}

	name := subscriptionName(frame, "messages:"+frame.ThreadID)
	client.subscribe(name, func(onError func(error)) (repository.Unsubscribe, error) {
		return m.messages.SubscribeMessages(client.ctx, frame.ThreadID, frame.Limit, func(messages []*entity.Message) {
			client.enqueue(ServerFrame{Type: MessageTypeMessages, Subscription: name, Data: messages})
		}, onError)
	})
}

func (m *Manager) handleSubscribePresence(client *Client, frame ClientFrame) {
	if frame.UserID == "" {
		m.sendError(client, frame.ID, errors.BadRequest("user_id is required", nil))
		return
	}

	name := subscriptionName(frame, "presence:"+frame.UserID)
	client.subscribe(name, func(onError func(error)) (repository.Unsubscribe, error) {
		return m.presence.SubscribeOnline(client.ctx, frame.UserID, func(p *entity.Presence) {
			client.enqueue(ServerFrame{Type: MessageTypePresence, Subscription: name, Data: p})
		}, onError)
	})
}

func (m *Manager) handleUnsubscribe(client *Client, frame ClientFrame) {
	if frame.Subscription == "" {
		m.sendError(client, frame.ID, errors.BadRequest("subscription is required", nil))
		return
	}
	if !client.unsubscribe(frame.Subscription) {
		m.sendError(client, frame.ID, errors.NotFound("Subscription", nil))
		return
	}
	m.sendAck(client, frame.ID, map[string]string{"subscription": frame.Subscription})
}

func (m *Manager) handleTyping(client *Client, frame ClientFrame) {
	if frame.ThreadID == "" {
		m.sendError(client, frame.ID, errors.BadRequest("thread_id is required", nil))
		return
	}
	if err := m.threads.SetTyping(client.ctx, frame.ThreadID, client.UserID, frame.Typing); err != nil {
		m.sendError(client, frame.ID, err)
		return
	}
	m.sendAck(client, frame.ID, nil)
}

// handleMarkRead zeroes the thread's unread counter, or records a read
// receipt on one message when message_id is given.
func (m *Manager) handleMarkRead(client *Client, frame ClientFrame) {
	if frame.ThreadID == "" {
		m.sendError(client, frame.ID, errors.BadRequest("thread_id is required", nil))
		return
	}

	var err error
	if frame.MessageID == "" {
		err = m.messages.MarkThreadAsRead(client.ctx, frame.ThreadID, client.UserID)
	} else if _, err = m.threads.GetThreadForUser(client.ctx, frame.ThreadID, client.UserID); err == nil {
		err = m.messages.MarkAsRead(client.ctx, frame.ThreadID, frame.MessageID, client.UserID)
	}
	if err != nil {
		m.sendError(client, frame.ID, err)
		return
	}
	m.sendAck(client, frame.ID, nil)
}

func (m *Manager) handleSendMessage(client *Client, frame ClientFrame) {
	if frame.ThreadID == "" || frame.Message == nil {
		m.sendError(client, frame.ID, errors.BadRequest("thread_id and message are required", nil))
		return
	}

	messageID, err := m.messages.AppendMessage(client.ctx, usecase.AppendMessageInput{
		ThreadID:    frame.ThreadID,
		SenderID:    client.UserID,
		Text:        frame.Message.Text,
		Type:        entity.MessageType(frame.Message.Type),
		UserImage:   frame.Message.UserImage,
		Coordinates: frame.Message.Coordinates,
		FileURL:     frame.Message.FileURL,
	})
	if err != nil {
		// A non-empty id means the message was stored but the thread
		// summary was not updated.
		var data interface{}
		if messageID != "" {
			data = map[string]string{"message_id": messageID}
		}
		client.enqueue(errorFrame(frame.ID, err, data))
		return
	}
	m.sendAck(client, frame.ID, map[string]string{"message_id": messageID})
}

func (m *Manager) sendAck(client *Client, id string, data interface{}) {
	client.enqueue(ServerFrame{Type: MessageTypeAck, ID: id, Data: data})
}

func (m *Manager) sendError(client *Client, id string, err error) {
	client.enqueue(errorFrame(id, err, nil))
}

func errorFrame(id string, err error, data interface{}) ServerFrame {
	code, message := errors.CodeInternal, "An unexpected error occurred"
	if appErr, ok := errors.AsAppError(err); ok {
		code, message = appErr.Code, appErr.Message
	}
	return ServerFrame{
		Type:  MessageTypeError,
		ID:    id,
		Data:  data,
		Error: &FrameError{Code: code, Message: message},
	}
}

func subscriptionName(frame ClientFrame, fallback string) string {
	if frame.Subscription != "" {
		return frame.Subscription
	}
	return fallback
}

func encodeFrame(frame ServerFrame) ([]byte, error) {
	if frame.Timestamp == "" {
		frame.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(frame)
}
