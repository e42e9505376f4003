package router

import (
	"adchat/internal/adapter/api/middleware"

	"github.com/labstack/echo/v4"
)

// Setup mounts the routes of the handlers registered with handler.Setup.
func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, supportMiddleware *middleware.SupportMiddleware) {
	SetupThreadRouter(e, authMiddleware)
	SetupPresenceRouter(e, authMiddleware)
	SetupTicketRouter(e, authMiddleware, supportMiddleware)
	SetupHealthRouter(e)
}
