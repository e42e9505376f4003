package router

import (
	"github.com/labstack/echo/v4"

	"adchat/internal/adapter/api/handler"
	"adchat/internal/adapter/api/middleware"
)

func SetupTicketRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, supportMiddleware *middleware.SupportMiddleware) {
	ticketHandler := handler.GetTicketHandler()

	ticketGroup := e.Group("/v1/tickets")
	ticketGroup.Use(authMiddleware.Authenticate)

	ticketGroup.POST("", ticketHandler.CreateTicket)
	ticketGroup.GET("", ticketHandler.ListTickets)
	ticketGroup.GET("/:id", ticketHandler.GetTicket)
	ticketGroup.POST("/:id/resolve", ticketHandler.ResolveTicket)
	ticketGroup.POST("/:id/reopen", ticketHandler.ReopenTicket)
	ticketGroup.POST("/:id/close", ticketHandler.CloseTicket)

	// Support agents only
	ticketGroup.PUT("/:id/status", ticketHandler.UpdateStatus, supportMiddleware.SupportOnly)
}
