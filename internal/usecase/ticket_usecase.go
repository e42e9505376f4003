package usecase

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/infrastructure/ratelimit"
	"adchat/pkg/errors"
	"adchat/pkg/logger"
)

// SupportAgent is the synthetic participant on the support side of every
// ticket thread.
type SupportAgent struct {
	ID    string
	Name  string
	Image string
}

type TicketUseCase struct {
	ticketRepo  repository.TicketRepository
	threads     *ThreadUseCase
	messages    *MessageUseCase
	agent       SupportAgent
	rateLimiter *ratelimit.RateLimiter
	now         func() time.Time
}

func NewTicketUseCase(
	ticketRepo repository.TicketRepository,
	threads *ThreadUseCase,
	messages *MessageUseCase,
	agent SupportAgent,
) *TicketUseCase {
	return &TicketUseCase{
		ticketRepo: ticketRepo,
		threads:    threads,
		messages:   messages,
		agent:      agent,
		now:        time.Now,
	}
}

func (uc *TicketUseCase) WithRateLimiter(rl *ratelimit.RateLimiter) *TicketUseCase {
	uc.rateLimiter = rl
	return uc
}

func (uc *TicketUseCase) WithClock(now func() time.Time) *TicketUseCase {
	uc.now = now
	return uc
}

type CreateTicketInput struct {
	UserID    string
	UserName  string
	UserImage string
	Subject   string
	Message   string
	QueryType string
	Priority  entity.TicketPriority
	Tags      []string
	Metadata  map[string]string
}

// Create opens an organisation thread between the user and the support
// agent, posts the ticket message as the user's first message, and stores
// the ticket as open.
func (uc *TicketUseCase) Create(ctx context.Context, input CreateTicketInput) (*entity.Ticket, error) {
	if input.UserID == "" {
		return nil, errors.BadRequest("User id is required", nil)
	}
	if input.UserID == uc.agent.ID {
		return nil, errors.BadRequest("Support agent cannot open a ticket", nil)
	}
	if strings.TrimSpace(input.Subject) == "" || strings.TrimSpace(input.Message) == "" {
		return nil, errors.BadRequest("Subject and message are required", nil)
	}
	if input.Priority == "" {
		input.Priority = entity.TicketPriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, errors.BadRequest("Invalid priority", nil)
	}
	if uc.rateLimiter != nil {
		if ok, wait := uc.rateLimiter.Allow(input.UserID, ratelimit.ActionCreateTicket); !ok {
			return nil, errors.TooManyRequests("Too many tickets", wait)
		}
	}

	ticketID := entity.TicketIDPrefix + uuid.New().String()

	threadID, err := uc.threads.CreateThread(ctx, CreateThreadInput{
		Kind:         entity.ThreadKindOrganisation,
		Participants: []string{input.UserID, uc.agent.ID},
		ParticipantDetails: map[string]entity.ParticipantDetail{
			input.UserID: {Name: input.UserName, Image: input.UserImage},
			uc.agent.ID:  {Name: uc.agent.Name, Image: uc.agent.Image, Verified: true},
		},
		Title: input.Subject,
		Refs:  entity.ThreadRefs{TicketID: ticketID},
	})
	if err != nil {
		log.Printf("CreateTicket Error: creating thread: %v", err)
		return nil, err
	}

	if _, err := uc.messages.AppendMessage(ctx, AppendMessageInput{
		ThreadID:  threadID,
		SenderID:  input.UserID,
		Text:      input.Message,
		Type:      entity.MessageTypeText,
		UserImage: input.UserImage,
	}); err != nil {
		log.Printf("CreateTicket Error: posting first message: %v", err)
		return nil, err
	}

	now := uc.now().UTC()
	ticket := &entity.Ticket{
		ID:        ticketID,
		UserID:    input.UserID,
		Subject:   input.Subject,
		Message:   input.Message,
		QueryType: input.QueryType,
		Status:    entity.TicketStatusOpen,
		Priority:  input.Priority,
		ChatID:    threadID,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      input.Tags,
		Metadata:  input.Metadata,
	}
	if err := uc.ticketRepo.Create(ctx, ticket); err != nil {
		log.Printf("CreateTicket Error: %v", err)
		return nil, err
	}
	logger.Info("Ticket %s opened by %s on thread %s", ticket.ID, ticket.UserID, threadID)
	return ticket, nil
}

func (uc *TicketUseCase) Get(ctx context.Context, ticketID string) (*entity.Ticket, error) {
	return uc.ticketRepo.GetByID(ctx, ticketID)
}

// GetForUser is Get restricted to the ticket owner and support agents.
func (uc *TicketUseCase) GetForUser(ctx context.Context, ticketID, userID string, isAgent bool) (*entity.Ticket, error) {
	ticket, err := uc.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !isAgent && ticket.UserID != userID {
		return nil, errors.Forbidden("You do not have access to this ticket", nil)
	}
	return ticket, nil
}

// UpdateStatus moves the ticket to status. Any state may follow any other.
func (uc *TicketUseCase) UpdateStatus(ctx context.Context, ticketID string, status entity.TicketStatus) (*entity.Ticket, error) {
	if !status.Valid() {
		return nil, errors.BadRequest("Invalid ticket status", nil)
	}
	return uc.transition(ctx, ticketID, func(t *entity.Ticket, now time.Time) {
		t.ApplyStatus(status, now)
	})
}

func (uc *TicketUseCase) Resolve(ctx context.Context, ticketID, resolvedBy, note string) (*entity.Ticket, error) {
	return uc.transition(ctx, ticketID, func(t *entity.Ticket, now time.Time) {
		t.ApplyStatus(entity.TicketStatusResolved, now)
		t.ResolvedBy = resolvedBy
		if note != "" {
			t.ResolutionNote = note
		}
	})
}

// Reopen forces the ticket back to open. The reason is logged only.
func (uc *TicketUseCase) Reopen(ctx context.Context, ticketID, userID, reason string) (*entity.Ticket, error) {
	ticket, err := uc.transition(ctx, ticketID, func(t *entity.Ticket, now time.Time) {
		t.ApplyStatus(entity.TicketStatusOpen, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Ticket %s reopened by %s: %q", ticketID, userID, reason)
	return ticket, nil
}

func (uc *TicketUseCase) Close(ctx context.Context, ticketID, closedBy string) (*entity.Ticket, error) {
	return uc.transition(ctx, ticketID, func(t *entity.Ticket, now time.Time) {
		t.ApplyStatus(entity.TicketStatusClosed, now)
		t.ClosedBy = closedBy
	})
}

// ListForUser filters with OR inside Statuses and QueryTypes and AND
// between them.
func (uc *TicketUseCase) ListForUser(ctx context.Context, userID string, filter entity.TicketFilter) ([]*entity.Ticket, error) {
	for _, s := range filter.Statuses {
		if !s.Valid() {
			return nil, errors.BadRequest("Invalid ticket status filter", nil)
		}
	}
	if filter.SortBy != "" && !filter.SortBy.Valid() {
		return nil, errors.BadRequest("Invalid sort field", nil)
	}
	if filter.Order != "" && filter.Order != entity.SortAsc && filter.Order != entity.SortDesc {
		return nil, errors.BadRequest("Invalid sort order", nil)
	}
	return uc.ticketRepo.ListByUser(ctx, userID, filter)
}

func (uc *TicketUseCase) transition(ctx context.Context, ticketID string, apply func(*entity.Ticket, time.Time)) (*entity.Ticket, error) {
	ticket, err := uc.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	apply(ticket, uc.now().UTC())
	if err := uc.ticketRepo.Update(ctx, ticket); err != nil {
		log.Printf("Ticket %s transition Error: %v", ticketID, err)
		return nil, err
	}
	return ticket, nil
}
