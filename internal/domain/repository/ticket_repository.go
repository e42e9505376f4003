package repository

import (
	"context"

	"adchat/internal/domain/entity"
)

type TicketRepository interface {
	Create(ctx context.Context, ticket *entity.Ticket) error
	GetByID(ctx context.Context, id string) (*entity.Ticket, error)
	Update(ctx context.Context, ticket *entity.Ticket) error
	ListByUser(ctx context.Context, userID string, filter entity.TicketFilter) ([]*entity.Ticket, error)
}
