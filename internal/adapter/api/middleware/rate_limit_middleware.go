package middleware

import (
	"log"

	"github.com/labstack/echo/v4"

	"adchat/internal/infrastructure/ratelimit"
	"adchat/pkg/errors"
	"adchat/pkg/response"
)

// ActionRateLimit charges the authenticated caller one token of action
// before the handler runs. Requests without a uid pass through.
func ActionRateLimit(rl *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, _ := c.Get("uid").(string)
			if rl == nil || uid == "" {
				return next(c)
			}

			if ok, wait := rl.Allow(uid, action); !ok {
				log.Printf("RATE LIMIT: %s blocked for %s (retry in %v)", action, uid, wait)
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded", wait))
			}

			return next(c)
		}
	}
}
