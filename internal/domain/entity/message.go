package entity

import "time"

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeLocation MessageType = "location"
	MessageTypeFile     MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeLocation, MessageTypeFile:
		return true
	}
	return false
}

type Coordinates struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

type Message struct {
	ID          string       `json:"id" firestore:"id"`
	ThreadID    string       `json:"thread_id" firestore:"threadId"`
	SenderID    string       `json:"sender_id" firestore:"senderId"`
	Text        string       `json:"text" firestore:"text"`
	Type        MessageType  `json:"type" firestore:"type"`
	IsRead      bool         `json:"is_read" firestore:"isRead"`
	ReadBy      []string     `json:"read_by" firestore:"readBy"`
	IsEdited    bool         `json:"is_edited" firestore:"isEdited"`
	CreatedAt   time.Time    `json:"created_at" firestore:"createdAt"`
	TimeStamp   int64        `json:"timestamp" firestore:"timeStamp"` // unix millis of CreatedAt
	UserImage   string       `json:"user_image,omitempty" firestore:"userImage,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty" firestore:"coordinates,omitempty"`
	FileURL     string       `json:"file_url,omitempty" firestore:"fileUrl,omitempty"`
}

// Summary projects the message into the thread's lastMessage shape. Location
// and file messages without text get a short placeholder.
func (m *Message) Summary() *LastMessage {
	text := m.Text
	if text == "" {
		switch m.Type {
		case MessageTypeLocation:
			text = "Location"
		case MessageTypeFile:
			text = "File"
		}
	}
	return &LastMessage{
		Text:      text,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
		Type:      m.Type,
	}
}

// Before reports whether m sorts before other: by CreatedAt, then by id.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.ReadBy = append([]string(nil), m.ReadBy...)
	if m.Coordinates != nil {
		coords := *m.Coordinates
		c.Coordinates = &coords
	}
	return &c
}
