package entity

import (
	"sort"
	"time"
)

type TicketStatus string

const (
	TicketStatusOpen           TicketStatus = "open"
	TicketStatusInProgress     TicketStatus = "in_progress"
	TicketStatusWaitingForUser TicketStatus = "waiting_for_user"
	TicketStatusResolved       TicketStatus = "resolved"
	TicketStatusClosed         TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaitingForUser, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

func (p TicketPriority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities from low (1) to urgent (4). Unknown values rank 0.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityLow:
		return 1
	case TicketPriorityMedium:
		return 2
	case TicketPriorityHigh:
		return 3
	case TicketPriorityUrgent:
		return 4
	}
	return 0
}

const TicketIDPrefix = "tkt_"

type Ticket struct {
	ID             string            `json:"id" firestore:"id"`
	UserID         string            `json:"user_id" firestore:"userId"`
	Subject        string            `json:"subject" firestore:"subject"`
	Message        string            `json:"message" firestore:"message"`
	QueryType      string            `json:"query_type" firestore:"queryType"`
	Status         TicketStatus      `json:"status" firestore:"status"`
	Priority       TicketPriority    `json:"priority" firestore:"priority"`
	ChatID         string            `json:"chat_id" firestore:"chatId"`
	CreatedAt      time.Time         `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time         `json:"updated_at" firestore:"updatedAt"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty" firestore:"resolvedAt"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty" firestore:"closedAt"`
	ResolutionNote string            `json:"resolution_note,omitempty" firestore:"resolutionNote,omitempty"`
	ResolvedBy     string            `json:"resolved_by,omitempty" firestore:"resolvedBy,omitempty"`
	ClosedBy       string            `json:"closed_by,omitempty" firestore:"closedBy,omitempty"`
	Tags           []string          `json:"tags,omitempty" firestore:"tags,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" firestore:"metadata,omitempty"`
}

// ApplyStatus moves the ticket to status and maintains the transition
// timestamps: resolved sets ResolvedAt, closed sets ClosedAt, and open or
// in_progress clears both.
func (t *Ticket) ApplyStatus(status TicketStatus, now time.Time) {
	t.Status = status
	t.UpdatedAt = now
	switch status {
	case TicketStatusResolved:
		t.ResolvedAt = &now
	case TicketStatusClosed:
		t.ClosedAt = &now
	case TicketStatusOpen, TicketStatusInProgress:
		t.ResolvedAt = nil
		t.ClosedAt = nil
	}
}

func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.ResolvedAt != nil {
		r := *t.ResolvedAt
		c.ResolvedAt = &r
	}
	if t.ClosedAt != nil {
		cl := *t.ClosedAt
		c.ClosedAt = &cl
	}
	return &c
}

type TicketSortField string

const (
	TicketSortCreatedAt TicketSortField = "createdAt"
	TicketSortUpdatedAt TicketSortField = "updatedAt"
	TicketSortPriority  TicketSortField = "priority"
	TicketSortStatus    TicketSortField = "status"
)

func (f TicketSortField) Valid() bool {
	switch f {
	case TicketSortCreatedAt, TicketSortUpdatedAt, TicketSortPriority, TicketSortStatus:
		return true
	}
	return false
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TicketFilter selects a user's tickets. Values within Statuses or
// QueryTypes are OR-ed; the two fields are AND-ed. Empty fields do not
// filter. A zero SortBy means createdAt, a zero Order means desc.
type TicketFilter struct {
	Statuses   []TicketStatus
	QueryTypes []string
	SortBy     TicketSortField
	Order      SortOrder
}

func (f TicketFilter) Match(t *Ticket) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if t.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.QueryTypes) > 0 {
		ok := false
		for _, q := range f.QueryTypes {
			if t.QueryType == q {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Sort orders tickets in place according to SortBy and Order. Ties fall
// back to CreatedAt and then id so results are stable across stores.
func (f TicketFilter) Sort(tickets []*Ticket) {
	desc := f.Order != SortAsc
	less := func(a, b *Ticket) int {
		switch f.SortBy {
		case TicketSortUpdatedAt:
			if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
				return c
			}
		case TicketSortPriority:
			if c := a.Priority.Rank() - b.Priority.Rank(); c != 0 {
				return c
			}
		case TicketSortStatus:
			if a.Status != b.Status {
				if a.Status < b.Status {
					return -1
				}
				return 1
			}
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		c := less(tickets[i], tickets[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}
