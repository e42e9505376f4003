package handler

import (
	"github.com/labstack/echo/v4"

	"adchat/internal/usecase"
	"adchat/pkg/response"
)

type PresenceHandler struct {
	presenceUseCase *usecase.PresenceUseCase
}

func NewPresenceHandler(presenceUseCase *usecase.PresenceUseCase) *PresenceHandler {
	return &PresenceHandler{
		presenceUseCase: presenceUseCase,
	}
}

type setPresenceRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// SetPresence records the caller's own online flag.
func (h *PresenceHandler) SetPresence(c echo.Context) error {
	var req setPresenceRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	if err := h.presenceUseCase.SetOnline(ctx, userID, *req.Online); err != nil {
		return response.Error(c, err)
	}

	presence, err := h.presenceUseCase.GetPresence(ctx, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, presence)
}

func (h *PresenceHandler) GetPresence(c echo.Context) error {
	presence, err := h.presenceUseCase.GetPresence(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, presence)
}
