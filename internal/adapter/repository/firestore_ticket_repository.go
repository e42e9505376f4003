package repository

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

const ticketsCollection = "tickets"

type firestoreTicketRepository struct {
	client *firestore.Client
}

func NewFirestoreTicketRepository(client *firestore.Client) repository.TicketRepository {
	return &firestoreTicketRepository{
		client: client,
	}
}

func (r *firestoreTicketRepository) Create(ctx context.Context, ticket *entity.Ticket) error {
	_, err := r.client.Collection(ticketsCollection).Doc(ticket.ID).Create(ctx, ticket)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict(fmt.Sprintf("Ticket %s already exists", ticket.ID), err)
		}
		return errors.Internal("Failed to create ticket", err)
	}
	return nil
}

func (r *firestoreTicketRepository) GetByID(ctx context.Context, id string) (*entity.Ticket, error) {
	doc, err := r.client.Collection(ticketsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Ticket", err)
		}
		return nil, errors.Internal("Failed to get ticket", err)
	}

	var ticket entity.Ticket
	if err := doc.DataTo(&ticket); err != nil {
		return nil, errors.Internal("Failed to parse ticket data", err)
	}
	ticket.ID = doc.Ref.ID
	return &ticket, nil
}

func (r *firestoreTicketRepository) Update(ctx context.Context, ticket *entity.Ticket) error {
	ref := r.client.Collection(ticketsCollection).Doc(ticket.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, ticket)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Ticket", err)
		}
		return errors.Internal("Failed to update ticket", err)
	}
	return nil
}

// ListByUser narrows by owner and status in the query and applies the rest
// of the filter and the ordering in memory.
func (r *firestoreTicketRepository) ListByUser(ctx context.Context, userID string, filter entity.TicketFilter) ([]*entity.Ticket, error) {
	query := r.client.Collection(ticketsCollection).Where("userId", "==", userID)
	if len(filter.Statuses) > 0 && len(filter.Statuses) <= 30 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while listing tickets for user %s: %v", userID, err)
		return nil, errors.Internal("Failed to list tickets", err)
	}

	tickets := make([]*entity.Ticket, 0, len(docs))
	for _, doc := range docs {
		var ticket entity.Ticket
		if err := doc.DataTo(&ticket); err != nil {
			log.Printf("Error parsing ticket %s: %v", doc.Ref.ID, err)
			return nil, errors.Internal("Failed to parse ticket data", err)
		}
		ticket.ID = doc.Ref.ID
		if filter.Match(&ticket) {
			tickets = append(tickets, &ticket)
		}
	}
	filter.Sort(tickets)
	return tickets, nil
}
