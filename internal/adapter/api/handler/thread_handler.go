package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/service"
	"adchat/internal/usecase"
	"adchat/pkg/errors"
	"adchat/pkg/logger"
	"adchat/pkg/response"
	"adchat/pkg/utils"
)

type ThreadHandler struct {
	threadUseCase  *usecase.ThreadUseCase
	messageUseCase *usecase.MessageUseCase
	fileService    service.FileUploadService
}

func NewThreadHandler(threadUseCase *usecase.ThreadUseCase, messageUseCase *usecase.MessageUseCase) *ThreadHandler {
	return &ThreadHandler{
		threadUseCase:  threadUseCase,
		messageUseCase: messageUseCase,
	}
}

// WithFileService lets DeleteMessage remove the attachment of a deleted
// file message.
func (h *ThreadHandler) WithFileService(fileService service.FileUploadService) *ThreadHandler {
	h.fileService = fileService
	return h
}

type createThreadRequest struct {
	Kind               string                              `json:"kind" validate:"required,oneof=ad dm organisation"`
	Participants       []string                            `json:"participants" validate:"required,min=1,unique,dive,required"`
	ParticipantDetails map[string]entity.ParticipantDetail `json:"participant_details"`
	Title              string                              `json:"title" validate:"max=200"`
	TitleLocalized     string                              `json:"title_localized" validate:"max=200"`
	Image              string                              `json:"image" validate:"omitempty,url"`
	Refs               entity.ThreadRefs                   `json:"refs"`
}

type typingRequest struct {
	Typing *bool `json:"typing" validate:"required"`
}

type sendMessageRequest struct {
	Text        string              `json:"text" validate:"max=4000"`
	Type        string              `json:"type" validate:"omitempty,oneof=text location file"`
	UserImage   string              `json:"user_image" validate:"omitempty,url"`
	Coordinates *entity.Coordinates `json:"coordinates"`
	FileURL     string              `json:"file_url" validate:"omitempty,url"`
}

type editMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

func (h *ThreadHandler) CreateThread(c echo.Context) error {
	var req createThreadRequest
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
	threadID, err := h.threadUseCase.CreateThread(ctx, usecase.CreateThreadInput{
		CreatorID:          userID,
		Kind:               entity.ThreadKind(req.Kind),
		Participants:       req.Participants,
		ParticipantDetails: req.ParticipantDetails,
		Title:              req.Title,
		TitleLocalized:     req.TitleLocalized,
		Image:              req.Image,
		Refs:               req.Refs,
	})
	if err != nil {
		return response.Error(c, err)
	}

	thread, err := h.threadUseCase.GetThread(ctx, threadID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, thread)
}

// ListThreads returns the caller's threads, newest activity first.
func (h *ThreadHandler) ListThreads(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	threads, err := h.threadUseCase.ListThreadsForUser(c.Request().Context(), userID, entity.ThreadKind(c.QueryParam("kind")))
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, threads, len(threads))
}

func (h *ThreadHandler) GetThread(c echo.Context) error {
	thread, err := h.participantThread(c)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, thread)
}

func (h *ThreadHandler) DeleteThread(c echo.Context) error {
	thread, err := h.participantThread(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.threadUseCase.DeleteThread(c.Request().Context(), thread.ID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Thread deleted successfully"})
}

func (h *ThreadHandler) SetTyping(c echo.Context) error {
	var req typingRequest
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

	if err := h.threadUseCase.SetTyping(c.Request().Context(), c.Param("id"), userID, *req.Typing); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]bool{"typing": *req.Typing})
}

func (h *ThreadHandler) MarkThreadAsRead(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.messageUseCase.MarkThreadAsRead(c.Request().Context(), c.Param("id"), userID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Thread marked as read"})
}

// SendMessage appends a message. When the message is stored but the thread
// summary could not be updated the message is still returned; the next
// message brings the summary up to date.
func (h *ThreadHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
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
	threadID := c.Param("id")
	messageID, err := h.messageUseCase.AppendMessage(ctx, usecase.AppendMessageInput{
		ThreadID:    threadID,
		SenderID:    userID,
		Text:        req.Text,
		Type:        entity.MessageType(req.Type),
		UserImage:   req.UserImage,
		Coordinates: req.Coordinates,
		FileURL:     req.FileURL,
	})
	if err != nil && messageID == "" {
		return response.Error(c, err)
	}

	message, getErr := h.messageUseCase.GetMessage(ctx, threadID, messageID)
	if getErr != nil {
		return response.Error(c, getErr)
	}

	return response.Created(c, message)
}

func (h *ThreadHandler) GetMessages(c echo.Context) error {
	thread, err := h.participantThread(c)
	if err != nil {
		return response.Error(c, err)
	}

	limit := utils.GetLimitParam(c, utils.DefaultMessageLimit, utils.MaxMessageLimit)

	messages, err := h.messageUseCase.ListMessages(c.Request().Context(), thread.ID, limit)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, messages, len(messages))
}

func (h *ThreadHandler) EditMessage(c echo.Context) error {
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.ownMessage(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	if err := h.messageUseCase.EditMessage(ctx, message.ThreadID, message.ID, req.Text); err != nil {
		return response.Error(c, err)
	}

	updated, err := h.messageUseCase.GetMessage(ctx, message.ThreadID, message.ID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, updated)
}

func (h *ThreadHandler) DeleteMessage(c echo.Context) error {
	message, err := h.ownMessage(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	if err := h.messageUseCase.DeleteMessage(ctx, message.ThreadID, message.ID); err != nil {
		return response.Error(c, err)
	}

	if message.FileURL != "" && h.fileService != nil {
		h.deleteAttachment(ctx, message)
	}

	return response.Success(c, map[string]string{"message": "Message deleted successfully"})
}

func (h *ThreadHandler) MarkMessageAsRead(c echo.Context) error {
	thread, err := h.participantThread(c)
	if err != nil {
		return response.Error(c, err)
	}

	userID, _ := currentUserID(c)
	if err := h.messageUseCase.MarkAsRead(c.Request().Context(), thread.ID, c.Param("messageId"), userID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Message marked as read"})
}

// participantThread loads the :id thread for the caller.
func (h *ThreadHandler) participantThread(c echo.Context) (*entity.Thread, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, err
	}

	return h.threadUseCase.GetThreadForUser(c.Request().Context(), c.Param("id"), userID)
}

// ownMessage loads :messageId and checks the caller sent it.
func (h *ThreadHandler) ownMessage(c echo.Context) (*entity.Message, error) {
	thread, err := h.participantThread(c)
	if err != nil {
		return nil, err
	}

	message, err := h.messageUseCase.GetMessage(c.Request().Context(), thread.ID, c.Param("messageId"))
	if err != nil {
		return nil, err
	}

	userID, _ := currentUserID(c)
	if message.SenderID != userID {
		return nil, errors.Forbidden("Only the sender can change this message", nil)
	}

	return message, nil
}

func (h *ThreadHandler) deleteAttachment(ctx context.Context, message *entity.Message) {
	if err := h.fileService.DeleteFile(ctx, message.FileURL); err != nil {
		logger.Warn("Attachment of message %s in %s not deleted: %v", message.ID, message.ThreadID, err)
	}
}
