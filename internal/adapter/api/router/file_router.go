package router

import (
	"github.com/labstack/echo/v4"

	"adchat/internal/adapter/api/handler"
	"adchat/internal/adapter/api/middleware"
	"adchat/internal/infrastructure/ratelimit"
)

// SetupFileRouter mounts attachment uploads. It is only called when a
// storage bucket is configured.
func SetupFileRouter(e *echo.Echo, fileHandler *handler.FileHandler, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	e.POST("/v1/threads/:id/attachments", fileHandler.UploadAttachment,
		authMiddleware.Authenticate,
		middleware.ActionRateLimit(rateLimiter, ratelimit.ActionUpload),
	)
}
