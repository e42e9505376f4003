package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SupportMiddleware restricts routes to the configured support agents.
type SupportMiddleware struct {
	agents map[string]struct{}
}

func NewSupportMiddleware(agentIDs []string) *SupportMiddleware {
	agents := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		agents[id] = struct{}{}
	}
	return &SupportMiddleware{
		agents: agents,
	}
}

func (m *SupportMiddleware) IsSupportAgent(uid string) bool {
	_, ok := m.agents[uid]
	return ok
}

func (m *SupportMiddleware) SupportOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, ok := c.Get("uid").(string)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
		}

		if !m.IsSupportAgent(uid) {
			return echo.NewHTTPError(http.StatusForbidden, "Support privileges required")
		}

		return next(c)
	}
}
