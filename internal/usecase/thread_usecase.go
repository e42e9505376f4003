package usecase

import (
	"context"
	"log"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/internal/infrastructure/ratelimit"
	"adchat/pkg/errors"
	"adchat/pkg/logger"
)

// resolveConcurrency bounds the thread lookups issued per list or snapshot.
const resolveConcurrency = 8

type ThreadUseCase struct {
	threadRepo    repository.ThreadRepository
	indexRepo     repository.IndexRepository
	messageRepo   repository.MessageRepository
	writer        *fanout.Writer
	rateLimiter   *ratelimit.RateLimiter
	cascadeDelete bool
}

func NewThreadUseCase(
	threadRepo repository.ThreadRepository,
	indexRepo repository.IndexRepository,
	messageRepo repository.MessageRepository,
	writer *fanout.Writer,
) *ThreadUseCase {
	return &ThreadUseCase{
		threadRepo:  threadRepo,
		indexRepo:   indexRepo,
		messageRepo: messageRepo,
		writer:      writer,
	}
}

// WithRateLimiter limits thread creation and typing per user. Without one
// nothing is limited.
func (uc *ThreadUseCase) WithRateLimiter(rl *ratelimit.RateLimiter) *ThreadUseCase {
	uc.rateLimiter = rl
	return uc
}

// WithCascadeDelete makes DeleteThread purge the thread's messages too.
func (uc *ThreadUseCase) WithCascadeDelete(enabled bool) *ThreadUseCase {
	uc.cascadeDelete = enabled
	return uc
}

type CreateThreadInput struct {
	// CreatorID is the requesting user. When set it must be a participant
	// and is charged against the create_thread limit.
	CreatorID          string
	Kind               entity.ThreadKind
	Participants       []string
	ParticipantDetails map[string]entity.ParticipantDetail
	Title              string
	TitleLocalized     string
	Image              string
	Refs               entity.ThreadRefs
}

func (in CreateThreadInput) validate() error {
	if !in.Kind.Valid() {
		return errors.BadRequest("Invalid thread kind", nil)
	}
	if len(in.Participants) == 0 {
		return errors.BadRequest("At least one participant is required", nil)
	}
	seen := make(map[string]struct{}, len(in.Participants))
	for _, p := range in.Participants {
		if p == "" {
			return errors.BadRequest("Participant ids must not be empty", nil)
		}
		if _, dup := seen[p]; dup {
			return errors.BadRequest("Participants must be distinct", nil)
		}
		seen[p] = struct{}{}
	}
	if in.CreatorID != "" {
		if _, ok := seen[in.CreatorID]; !ok {
			return errors.Forbidden("Creator must be a participant", nil)
		}
	}
	return nil
}

// CreateThread writes the thread and one index entry per participant in a
// single commit and returns the new thread id.
func (uc *ThreadUseCase) CreateThread(ctx context.Context, input CreateThreadInput) (string, error) {
	if err := input.validate(); err != nil {
		return "", err
	}
	if err := uc.allow(input.CreatorID, ratelimit.ActionCreateThread, "Too many conversations created"); err != nil {
		return "", err
	}

	details := make(map[string]entity.ParticipantDetail, len(input.ParticipantDetails))
	for id, d := range input.ParticipantDetails {
		details[id] = d
	}
	thread := &entity.Thread{
		ID:                 input.Kind.IDPrefix() + uuid.New().String(),
		Kind:               input.Kind,
		Title:              input.Title,
		TitleLocalized:     input.TitleLocalized,
		Image:              input.Image,
		Participants:       append([]string(nil), input.Participants...),
		ParticipantDetails: details,
		Refs:               input.Refs,
	}

	if err := uc.writer.CreateThread(ctx, thread); err != nil {
		log.Printf("CreateThread Error: %v", err)
		return "", err
	}
	logger.Debug("Thread %s created for %v", thread.ID, thread.Participants)
	return thread.ID, nil
}

func (uc *ThreadUseCase) GetThread(ctx context.Context, threadID string) (*entity.Thread, error) {
	return uc.threadRepo.GetByID(ctx, threadID)
}

// GetThreadForUser is GetThread restricted to participants.
func (uc *ThreadUseCase) GetThreadForUser(ctx context.Context, threadID, userID string) (*entity.Thread, error) {
	thread, err := uc.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}
	return thread, nil
}

// ThreadResolution is the outcome of looking up the thread behind one index
// entry. Skipped is set when the thread no longer exists, in which case
// Thread is nil.
type ThreadResolution struct {
	Entry   *entity.IndexEntry
	Thread  *entity.Thread
	Skipped bool
}

// ResolveThreads looks up the thread of every entry concurrently. A missing
// thread is reported as skipped rather than failing the whole call; any
// other lookup error does fail it. Results keep the order of entries.
func (uc *ThreadUseCase) ResolveThreads(ctx context.Context, entries []*entity.IndexEntry) ([]ThreadResolution, error) {
	results := make([]ThreadResolution, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for i, entry := range entries {
		i, entry := i, entry
		results[i].Entry = entry
		g.Go(func() error {
			thread, err := uc.threadRepo.GetByID(gctx, entry.ThreadID)
			if errors.IsNotFound(err) {
				results[i].Skipped = true
				return nil
			}
			if err != nil {
				return err
			}
			results[i].Thread = thread
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ListThreadsForUser returns the user's threads of kind (all kinds when
// empty), most recently updated first. Index entries whose thread is gone
// are skipped.
func (uc *ThreadUseCase) ListThreadsForUser(ctx context.Context, userID string, kind entity.ThreadKind) ([]*entity.Thread, error) {
	if kind != "" && !kind.Valid() {
		return nil, errors.BadRequest("Invalid thread kind", nil)
	}
	entries, err := uc.indexRepo.ListByUser(ctx, userID, kind)
	if err != nil {
		log.Printf("ListThreadsForUser Error: %v", err)
		return nil, err
	}
	return uc.resolveList(ctx, userID, entries)
}

func (uc *ThreadUseCase) resolveList(ctx context.Context, userID string, entries []*entity.IndexEntry) ([]*entity.Thread, error) {
	results, err := uc.ResolveThreads(ctx, entries)
	if err != nil {
		return nil, err
	}

	threads := make([]*entity.Thread, 0, len(results))
	for _, r := range results {
		if r.Skipped {
			logger.Debug("Skipping dangling index entry %s for user %s", r.Entry.ThreadID, userID)
			continue
		}
		threads = append(threads, r.Thread)
	}
	sort.SliceStable(threads, func(i, j int) bool {
		if !threads[i].UpdatedAt.Equal(threads[j].UpdatedAt) {
			return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
		}
		return threads[i].ID > threads[j].ID
	})
	return threads, nil
}

// SubscribeThreadsForUser pushes the resolved thread list to onChange on
// every change to the user's index, starting with the current list.
func (uc *ThreadUseCase) SubscribeThreadsForUser(
	ctx context.Context,
	userID string,
	kind entity.ThreadKind,
	onChange func([]*entity.Thread),
	onError func(error),
) (repository.Unsubscribe, error) {
	if kind != "" && !kind.Valid() {
		return nil, errors.BadRequest("Invalid thread kind", nil)
	}
	return uc.indexRepo.WatchByUser(ctx, userID, kind, func(entries []*entity.IndexEntry) {
		threads, err := uc.resolveList(ctx, userID, entries)
		if err != nil {
			if ctx.Err() == nil && onError != nil {
				onError(err)
			}
			return
		}
		onChange(threads)
	}, onError)
}

// SubscribeThread pushes userID's view of one thread to onChange after every
// change to the thread record, including typing flags and unread counters.
// Only participants may subscribe. A deleted thread is delivered as nil.
func (uc *ThreadUseCase) SubscribeThread(
	ctx context.Context,
	threadID, userID string,
	onChange func(*entity.Thread),
	onError func(error),
) (repository.Unsubscribe, error) {
	if _, err := uc.GetThreadForUser(ctx, threadID, userID); err != nil {
		return nil, err
	}
	return uc.threadRepo.Watch(ctx, threadID, onChange, onError)
}

// DeleteThread removes the thread and every participant's index entry in
// one commit. Messages are only removed when cascade delete is enabled.
func (uc *ThreadUseCase) DeleteThread(ctx context.Context, threadID string) error {
	thread, err := uc.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		return err
	}
	if err := uc.writer.DeleteThread(ctx, thread); err != nil {
		log.Printf("DeleteThread Error: %v", err)
		return err
	}
	if uc.cascadeDelete {
		if err := uc.messageRepo.DeleteAllForThread(ctx, threadID); err != nil {
			log.Printf("DeleteThread Error: purging messages of %s: %v", threadID, err)
			return err
		}
	}
	return nil
}

// SetTyping sets userID's typing flag on the thread. Only turning the flag
// on is rate limited.
func (uc *ThreadUseCase) SetTyping(ctx context.Context, threadID, userID string, typing bool) error {
	if _, err := uc.GetThreadForUser(ctx, threadID, userID); err != nil {
		return err
	}
	if typing {
		if err := uc.allow(userID, ratelimit.ActionTyping, "Too many typing updates"); err != nil {
			return err
		}
	}
	return uc.writer.SetTyping(ctx, threadID, userID, typing)
}

func (uc *ThreadUseCase) allow(userID, action, message string) error {
	if uc.rateLimiter == nil || userID == "" {
		return nil
	}
	if ok, wait := uc.rateLimiter.Allow(userID, action); !ok {
		return errors.TooManyRequests(message, wait)
	}
	return nil
}
