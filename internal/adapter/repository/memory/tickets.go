package memory

import (
	"context"
	"fmt"

	"adchat/internal/domain/entity"
	"adchat/pkg/errors"
)

type ticketRepo struct {
	s *Store
}

func (r *ticketRepo) Create(ctx context.Context, ticket *entity.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[ticket.ID]; ok {
		return errors.Conflict(fmt.Sprintf("Ticket %s already exists", ticket.ID), nil)
	}
	r.s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*entity.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, errors.NotFound("Ticket", nil)
	}
	return ticket.Clone(), nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket *entity.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[ticket.ID]; !ok {
		return errors.NotFound("Ticket", nil)
	}
	r.s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *ticketRepo) ListByUser(ctx context.Context, userID string, filter entity.TicketFilter) ([]*entity.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	var tickets []*entity.Ticket
	for _, t := range r.s.tickets {
		if t.UserID == userID && filter.Match(t) {
			tickets = append(tickets, t.Clone())
		}
	}
	r.s.mu.RUnlock()

	filter.Sort(tickets)
	return tickets, nil
}
