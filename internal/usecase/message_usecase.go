package usecase

import (
	"context"
	"log"
	"strings"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/internal/infrastructure/ratelimit"
	"adchat/pkg/errors"
	"adchat/pkg/logger"
	"adchat/pkg/utils"
)

type MessageUseCase struct {
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	writer      *fanout.Writer
	rateLimiter *ratelimit.RateLimiter
}

func NewMessageUseCase(
	threadRepo repository.ThreadRepository,
	messageRepo repository.MessageRepository,
	writer *fanout.Writer,
) *MessageUseCase {
	return &MessageUseCase{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		writer:      writer,
	}
}

// WithRateLimiter limits sends per user. Without one nothing is limited.
func (uc *MessageUseCase) WithRateLimiter(rl *ratelimit.RateLimiter) *MessageUseCase {
	uc.rateLimiter = rl
	return uc
}

type AppendMessageInput struct {
	ThreadID    string
	SenderID    string
	Text        string
	Type        entity.MessageType
	UserImage   string
	Coordinates *entity.Coordinates
	FileURL     string
}

func (in *AppendMessageInput) validate() error {
	if in.Type == "" {
		in.Type = entity.MessageTypeText
	}
	if !in.Type.Valid() {
		return errors.BadRequest("Invalid message type", nil)
	}
	if in.ThreadID == "" || in.SenderID == "" {
		return errors.BadRequest("Thread and sender are required", nil)
	}
	switch in.Type {
	case entity.MessageTypeText:
		if strings.TrimSpace(in.Text) == "" {
			return errors.BadRequest("Message text is required", nil)
		}
	case entity.MessageTypeLocation:
		if in.Coordinates == nil {
			return errors.BadRequest("Coordinates are required for location messages", nil)
		}
	case entity.MessageTypeFile:
		if in.FileURL == "" {
			return errors.BadRequest("File URL is required for file messages", nil)
		}
	}
	return nil
}

// AppendMessage stores the message and then applies its summary to the
// thread and every participant's index entry.
//
// The two steps are separate commits. When the summary commit fails the
// message stays in the log, the divergence is logged, and both the message
// id and the error are returned.
func (uc *MessageUseCase) AppendMessage(ctx context.Context, input AppendMessageInput) (string, error) {
	if err := input.validate(); err != nil {
		return "", err
	}

	thread, err := uc.threadRepo.GetByID(ctx, input.ThreadID)
	if err != nil {
		return "", err
	}
	if !thread.HasParticipant(input.SenderID) {
		return "", errors.Forbidden("You are not a participant in this conversation", nil)
	}

	if uc.rateLimiter != nil {
		if ok, wait := uc.rateLimiter.Allow(input.SenderID, ratelimit.ActionSendMessage); !ok {
			return "", errors.TooManyRequests("Too many messages", wait)
		}
	}

	message := &entity.Message{
		ThreadID:    input.ThreadID,
		SenderID:    input.SenderID,
		Text:        input.Text,
		Type:        input.Type,
		ReadBy:      []string{input.SenderID},
		UserImage:   input.UserImage,
		Coordinates: input.Coordinates,
		FileURL:     input.FileURL,
	}
	if err := uc.messageRepo.Append(ctx, message); err != nil {
		log.Printf("AppendMessage Error: %v", err)
		return "", err
	}

	if err := uc.writer.ApplyMessage(ctx, thread, message); err != nil {
		logger.LogSummaryDivergence(thread.ID, message.ID, err)
		return message.ID, err
	}
	return message.ID, nil
}

// ListMessages returns the latest limit messages in ascending order.
func (uc *MessageUseCase) ListMessages(ctx context.Context, threadID string, limit int) ([]*entity.Message, error) {
	messages, err := uc.messageRepo.ListLatest(ctx, threadID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return chronological(messages), nil
}

// SubscribeMessages pushes the ListMessages window on every change.
func (uc *MessageUseCase) SubscribeMessages(
	ctx context.Context,
	threadID string,
	limit int,
	onChange func([]*entity.Message),
	onError func(error),
) (repository.Unsubscribe, error) {
	return uc.messageRepo.WatchLatest(ctx, threadID, clampLimit(limit), func(messages []*entity.Message) {
		onChange(chronological(messages))
	}, onError)
}

func (uc *MessageUseCase) GetMessage(ctx context.Context, threadID, messageID string) (*entity.Message, error) {
	return uc.messageRepo.GetByID(ctx, threadID, messageID)
}

// MarkAsRead records a read receipt on one message. Unread counters are not
// touched.
func (uc *MessageUseCase) MarkAsRead(ctx context.Context, threadID, messageID, userID string) error {
	return uc.messageRepo.MarkRead(ctx, threadID, messageID, userID)
}

// MarkThreadAsRead zeroes userID's unread counter on the thread and on the
// user's index entry. It does nothing when the counter is already zero.
func (uc *MessageUseCase) MarkThreadAsRead(ctx context.Context, threadID, userID string) error {
	thread, err := uc.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		return err
	}
	if !thread.HasParticipant(userID) {
		return errors.Forbidden("You are not a participant in this conversation", nil)
	}
	if thread.UnreadCount[userID] == 0 {
		return nil
	}
	if err := uc.writer.MarkThreadRead(ctx, threadID, userID); err != nil {
		log.Printf("MarkThreadAsRead Error: %v", err)
		return err
	}
	return nil
}

// EditMessage replaces the text and flags the message as edited. The
// thread's lastMessage is left as it was.
func (uc *MessageUseCase) EditMessage(ctx context.Context, threadID, messageID, newText string) error {
	if strings.TrimSpace(newText) == "" {
		return errors.BadRequest("Message text is required", nil)
	}
	return uc.messageRepo.UpdateText(ctx, threadID, messageID, newText)
}

// DeleteMessage hard-deletes one message. The thread's lastMessage is left
// as it was.
func (uc *MessageUseCase) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	return uc.messageRepo.Delete(ctx, threadID, messageID)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return utils.DefaultMessageLimit
	}
	if limit > utils.MaxMessageLimit {
		return utils.MaxMessageLimit
	}
	return limit
}

// chronological reverses a newest-first window in place.
func chronological(messages []*entity.Message) []*entity.Message {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages
}
