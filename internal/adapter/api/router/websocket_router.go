package router

import (
	"github.com/labstack/echo/v4"

	"adchat/internal/adapter/api/handler"
)

// SetupWebSocketRouter sets up WebSocket routes
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	// Authentication happens inside the handler, before the upgrade
	e.GET("/ws", wsHandler.HandleWebSocket)
}
