package router

import (
	"github.com/labstack/echo/v4"

	"adchat/internal/adapter/api/handler"
	"adchat/internal/adapter/api/middleware"
)

func SetupThreadRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	threadHandler := handler.GetThreadHandler()

	threadGroup := e.Group("/v1/threads")
	threadGroup.Use(authMiddleware.Authenticate)

	// Threads
	threadGroup.POST("", threadHandler.CreateThread)
	threadGroup.GET("", threadHandler.ListThreads)
	threadGroup.GET("/:id", threadHandler.GetThread)
	threadGroup.DELETE("/:id", threadHandler.DeleteThread)
	threadGroup.PUT("/:id/typing", threadHandler.SetTyping)
	threadGroup.PUT("/:id/read", threadHandler.MarkThreadAsRead)

	// Messages
	threadGroup.POST("/:id/messages", threadHandler.SendMessage)
	threadGroup.GET("/:id/messages", threadHandler.GetMessages)
	threadGroup.PUT("/:id/messages/:messageId", threadHandler.EditMessage)
	threadGroup.DELETE("/:id/messages/:messageId", threadHandler.DeleteMessage)
	threadGroup.PUT("/:id/messages/:messageId/read", threadHandler.MarkMessageAsRead)
}
