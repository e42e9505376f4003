package handler

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"adchat/internal/domain/entity"
	"adchat/internal/usecase"
	"adchat/pkg/errors"
	"adchat/pkg/logger"
	"adchat/pkg/response"
	"adchat/pkg/utils"
)

// AgentChecker tells support agents apart from regular users.
type AgentChecker interface {
	IsSupportAgent(uid string) bool
}

// ProfileLookup supplies the display name and image shown for a ticket
// owner in the support thread.
type ProfileLookup interface {
	DisplayProfile(ctx context.Context, uid string) (name, image string, err error)
}

type TicketHandler struct {
	ticketUseCase *usecase.TicketUseCase
	agents        AgentChecker
	profiles      ProfileLookup
}

func NewTicketHandler(ticketUseCase *usecase.TicketUseCase, agents AgentChecker, profiles ProfileLookup) *TicketHandler {
	return &TicketHandler{
		ticketUseCase: ticketUseCase,
		agents:        agents,
		profiles:      profiles,
	}
}

type createTicketRequest struct {
	Subject   string            `json:"subject" validate:"required,max=200"`
	Message   string            `json:"message" validate:"required,max=4000"`
	QueryType string            `json:"query_type" validate:"max=64"`
	Priority  string            `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	UserName  string            `json:"user_name" validate:"max=100"`
	UserImage string            `json:"user_image" validate:"omitempty,url"`
	Tags      []string          `json:"tags" validate:"max=20,dive,max=50"`
	Metadata  map[string]string `json:"metadata"`
}

type updateTicketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress waiting_for_user resolved closed"`
}

type resolveTicketRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type reopenTicketRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func (h *TicketHandler) CreateTicket(c echo.Context) error {
	var req createTicketRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	name, image := req.UserName, req.UserImage
	if h.profiles != nil && (name == "" || image == "") {
		profileName, profileImage, err := h.profiles.DisplayProfile(ctx, userID)
		if err != nil {
			logger.Warn("No profile for ticket owner %s: %v", userID, err)
		}
		if name == "" {
			name = profileName
		}
		if image == "" {
			image = profileImage
		}
	}

	ticket, err := h.ticketUseCase.Create(ctx, usecase.CreateTicketInput{
		UserID:    userID,
		UserName:  name,
		UserImage: image,
		Subject:   req.Subject,
		Message:   req.Message,
		QueryType: req.QueryType,
		Priority:  entity.TicketPriority(req.Priority),
		Tags:      req.Tags,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, ticket)
}

// ListTickets lists the caller's tickets. status and queryType accept
// comma separated or repeated values. Support agents may pass userId to
// list another user's tickets.
func (h *TicketHandler) ListTickets(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	if other := c.QueryParam("userId"); other != "" && other != userID {
		if !h.isAgent(userID) {
			return response.Error(c, errors.Forbidden("Only support agents can list other users' tickets", nil))
		}
		userID = other
	}

	filter := entity.TicketFilter{
		QueryTypes: utils.GetListParam(c, "queryType"),
		SortBy:     entity.TicketSortField(c.QueryParam("sortBy")),
		Order:      entity.SortOrder(strings.ToLower(c.QueryParam("order"))),
	}
	for _, s := range utils.GetListParam(c, "status") {
		filter.Statuses = append(filter.Statuses, entity.TicketStatus(s))
	}

	tickets, err := h.ticketUseCase.ListForUser(c.Request().Context(), userID, filter)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, tickets, len(tickets))
}

func (h *TicketHandler) GetTicket(c echo.Context) error {
	ticket, err := h.visibleTicket(c)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, ticket)
}

// UpdateStatus is mounted behind the support-only middleware.
func (h *TicketHandler) UpdateStatus(c echo.Context) error {
	var req updateTicketStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	ticket, err := h.ticketUseCase.UpdateStatus(c.Request().Context(), c.Param("id"), entity.TicketStatus(req.Status))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, ticket)
}

func (h *TicketHandler) ResolveTicket(c echo.Context) error {
	var req resolveTicketRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	current, err := h.visibleTicket(c)
	if err != nil {
		return response.Error(c, err)
	}

	userID, _ := currentUserID(c)
	ticket, err := h.ticketUseCase.Resolve(c.Request().Context(), current.ID, userID, req.Note)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, ticket)
}

func (h *TicketHandler) ReopenTicket(c echo.Context) error {
	var req reopenTicketRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	current, err := h.visibleTicket(c)
	if err != nil {
		return response.Error(c, err)
	}

	userID, _ := currentUserID(c)
	ticket, err := h.ticketUseCase.Reopen(c.Request().Context(), current.ID, userID, req.Reason)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, ticket)
}

func (h *TicketHandler) CloseTicket(c echo.Context) error {
	current, err := h.visibleTicket(c)
	if err != nil {
		return response.Error(c, err)
	}

	userID, _ := currentUserID(c)
	ticket, err := h.ticketUseCase.Close(c.Request().Context(), current.ID, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, ticket)
}

// visibleTicket loads :id for its owner or a support agent.
func (h *TicketHandler) visibleTicket(c echo.Context) (*entity.Ticket, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, err
	}

	return h.ticketUseCase.GetForUser(c.Request().Context(), c.Param("id"), userID, h.isAgent(userID))
}

func (h *TicketHandler) isAgent(uid string) bool {
	return h.agents != nil && h.agents.IsSupportAgent(uid)
}
