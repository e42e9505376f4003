package utils

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 500
)

// GetLimitParam reads the "limit" query parameter, falling back to
// defaultLimit when it is missing, malformed, or out of range.
func GetLimitParam(c echo.Context, defaultLimit, maxLimit int) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// GetListParam reads a repeated or comma-separated query parameter.
// Both ?status=open&status=closed and ?status=open,closed are accepted.
func GetListParam(c echo.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryParams()[name] {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
