package entity

import (
	"strings"
	"time"
)

type ThreadKind string

const (
	ThreadKindAd           ThreadKind = "ad"
	ThreadKindDM           ThreadKind = "dm"
	ThreadKindOrganisation ThreadKind = "organisation"
)

// Thread id prefixes. The kind of a thread can be recovered from its id alone.
const (
	threadPrefixAd           = "ad_"
	threadPrefixDM           = "dm_"
	threadPrefixOrganisation = "org_"
)

// Firestore field names shared by Thread and IndexEntry. Fan-out updates
// address fields by these names.
const (
	FieldLastMessage  = "lastMessage"
	FieldUnreadCount  = "unreadCount"
	FieldTyping       = "typing"
	FieldUpdatedAt    = "updatedAt"
	FieldOnlineStatus = "onlineStatus"
)

func (k ThreadKind) Valid() bool {
	switch k {
	case ThreadKindAd, ThreadKindDM, ThreadKindOrganisation:
		return true
	}
	return false
}

// IDPrefix returns the id prefix for threads of this kind.
func (k ThreadKind) IDPrefix() string {
	switch k {
	case ThreadKindAd:
		return threadPrefixAd
	case ThreadKindDM:
		return threadPrefixDM
	case ThreadKindOrganisation:
		return threadPrefixOrganisation
	}
	return ""
}

// KindFromID recovers the thread kind from a prefixed thread id.
func KindFromID(threadID string) (ThreadKind, bool) {
	switch {
	case strings.HasPrefix(threadID, threadPrefixAd):
		return ThreadKindAd, true
	case strings.HasPrefix(threadID, threadPrefixDM):
		return ThreadKindDM, true
	case strings.HasPrefix(threadID, threadPrefixOrganisation):
		return ThreadKindOrganisation, true
	}
	return "", false
}

type ParticipantDetail struct {
	Name          string `json:"name" firestore:"name"`
	NameLocalized string `json:"name_localized,omitempty" firestore:"nameLocalized,omitempty"`
	Image         string `json:"image,omitempty" firestore:"image,omitempty"`
	Verified      bool   `json:"verified" firestore:"verified"`
}

// LastMessage is the denormalized summary of a thread's most recent message.
// The same projection is copied into every participant's IndexEntry.
type LastMessage struct {
	Text      string      `json:"text" firestore:"text"`
	SenderID  string      `json:"sender_id" firestore:"senderId"`
	CreatedAt time.Time   `json:"created_at" firestore:"createdAt"`
	Type      MessageType `json:"type" firestore:"type"`
}

// ThreadRefs links a thread to the object it was opened from.
type ThreadRefs struct {
	AdID           string `json:"ad_id,omitempty" firestore:"adId,omitempty"`
	OrganisationID string `json:"organisation_id,omitempty" firestore:"organisationId,omitempty"`
	TicketID       string `json:"ticket_id,omitempty" firestore:"ticketId,omitempty"`
}

type Thread struct {
	ID                 string                       `json:"id" firestore:"id"`
	Kind               ThreadKind                   `json:"kind" firestore:"kind"`
	Title              string                       `json:"title" firestore:"title"`
	TitleLocalized     string                       `json:"title_localized,omitempty" firestore:"titleLocalized,omitempty"`
	Image              string                       `json:"image,omitempty" firestore:"image,omitempty"`
	Participants       []string                     `json:"participants" firestore:"participants"`
	ParticipantDetails map[string]ParticipantDetail `json:"participant_details" firestore:"participantDetails"`
	LastMessage        *LastMessage                 `json:"last_message,omitempty" firestore:"lastMessage"`
	UnreadCount        map[string]int               `json:"unread_count" firestore:"unreadCount"`
	Typing             map[string]bool              `json:"typing" firestore:"typing"`
	OnlineStatus       map[string]bool              `json:"online_status" firestore:"onlineStatus"` // legacy, not authoritative
	Refs               ThreadRefs                   `json:"refs" firestore:"refs"`
	CreatedAt          time.Time                    `json:"created_at" firestore:"createdAt"`
	UpdatedAt          time.Time                    `json:"updated_at" firestore:"updatedAt"`
}

func (t *Thread) HasParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never hand out aliased maps.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	c := *t
	c.Participants = append([]string(nil), t.Participants...)
	c.ParticipantDetails = make(map[string]ParticipantDetail, len(t.ParticipantDetails))
	for k, v := range t.ParticipantDetails {
		c.ParticipantDetails[k] = v
	}
	c.UnreadCount = make(map[string]int, len(t.UnreadCount))
	for k, v := range t.UnreadCount {
		c.UnreadCount[k] = v
	}
	c.Typing = make(map[string]bool, len(t.Typing))
	for k, v := range t.Typing {
		c.Typing[k] = v
	}
	c.OnlineStatus = make(map[string]bool, len(t.OnlineStatus))
	for k, v := range t.OnlineStatus {
		c.OnlineStatus[k] = v
	}
	if t.LastMessage != nil {
		lm := *t.LastMessage
		c.LastMessage = &lm
	}
	return &c
}
