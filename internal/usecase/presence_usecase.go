package usecase

import (
	"context"
	"time"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

// PresenceUseCase tracks whether users are online. When to report a user
// online or offline is up to the caller; the websocket gateway does it on
// connect, ping and disconnect.
type PresenceUseCase struct {
	presenceRepo repository.PresenceRepository
	staleAfter   time.Duration
	now          func() time.Time
}

// NewPresenceUseCase creates the tracker. A positive staleAfter reports a
// user offline once their last update is older than that window; zero
// trusts the stored flag as is.
func NewPresenceUseCase(presenceRepo repository.PresenceRepository, staleAfter time.Duration) *PresenceUseCase {
	return &PresenceUseCase{
		presenceRepo: presenceRepo,
		staleAfter:   staleAfter,
		now:          time.Now,
	}
}

func (uc *PresenceUseCase) WithClock(now func() time.Time) *PresenceUseCase {
	uc.now = now
	return uc
}

// SetOnline merges {online, lastSeen=now} into the user's record.
func (uc *PresenceUseCase) SetOnline(ctx context.Context, userID string, online bool) error {
	if userID == "" {
		return errors.BadRequest("User id is required", nil)
	}
	return uc.presenceRepo.Upsert(ctx, userID, online, uc.now().UTC())
}

// GetOnline is false for users without a record.
func (uc *PresenceUseCase) GetOnline(ctx context.Context, userID string) (bool, error) {
	p, err := uc.GetPresence(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.Online, nil
}

// GetPresence returns the effective presence of userID. Users without a
// record are reported offline with a zero LastSeen.
func (uc *PresenceUseCase) GetPresence(ctx context.Context, userID string) (*entity.Presence, error) {
	p, err := uc.presenceRepo.Get(ctx, userID)
	if errors.IsNotFound(err) {
		return &entity.Presence{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return uc.effective(userID, p), nil
}

// SubscribeOnline pushes the effective presence on every change, starting
// with the current state.
func (uc *PresenceUseCase) SubscribeOnline(
	ctx context.Context,
	userID string,
	onChange func(*entity.Presence),
	onError func(error),
) (repository.Unsubscribe, error) {
	return uc.presenceRepo.Watch(ctx, userID, func(p *entity.Presence) {
		onChange(uc.effective(userID, p))
	}, onError)
}

func (uc *PresenceUseCase) effective(userID string, p *entity.Presence) *entity.Presence {
	if p == nil {
		return &entity.Presence{UserID: userID}
	}
	c := *p
	c.Online = p.OnlineAt(uc.now(), uc.staleAfter)
	return &c
}
