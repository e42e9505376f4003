package handler

import (
	"github.com/labstack/echo/v4"

	"adchat/internal/usecase"
	"adchat/pkg/errors"
)

var (
	threadHandler   *ThreadHandler
	presenceHandler *PresenceHandler
	ticketHandler   *TicketHandler
	healthHandler   *HealthHandler
)

func Setup(
	threadUseCase *usecase.ThreadUseCase,
	messageUseCase *usecase.MessageUseCase,
	presenceUseCase *usecase.PresenceUseCase,
	ticketUseCase *usecase.TicketUseCase,
	agents AgentChecker,
	profiles ProfileLookup,
) {
	threadHandler = NewThreadHandler(threadUseCase, messageUseCase)
	presenceHandler = NewPresenceHandler(presenceUseCase)
	ticketHandler = NewTicketHandler(ticketUseCase, agents, profiles)
	healthHandler = NewHealthHandler()
}

func GetThreadHandler() *ThreadHandler {
	return threadHandler
}

func GetPresenceHandler() *PresenceHandler {
	return presenceHandler
}

func GetTicketHandler() *TicketHandler {
	return ticketHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

// currentUserID returns the uid set by the auth middleware.
func currentUserID(c echo.Context) (string, error) {
	uid, ok := c.Get("uid").(string)
	if !ok || uid == "" {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	return uid, nil
}
