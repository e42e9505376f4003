package router

import (
	"github.com/labstack/echo/v4"

	"adchat/internal/adapter/api/handler"
	"adchat/internal/adapter/api/middleware"
)

func SetupPresenceRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	presenceHandler := handler.GetPresenceHandler()

	presenceGroup := e.Group("/v1/presence")
	presenceGroup.Use(authMiddleware.Authenticate)

	presenceGroup.PUT("", presenceHandler.SetPresence)
	presenceGroup.GET("/:userId", presenceHandler.GetPresence)
}
