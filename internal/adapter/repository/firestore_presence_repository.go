package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

const presenceCollection = "presence"

type firestorePresenceRepository struct {
	client *firestore.Client
}

func NewFirestorePresenceRepository(client *firestore.Client) repository.PresenceRepository {
	return &firestorePresenceRepository{
		client: client,
	}
}

func (r *firestorePresenceRepository) Upsert(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	_, err := r.client.Collection(presenceCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"userId":   userID,
		"online":   online,
		"lastSeen": lastSeen,
	}, firestore.MergeAll)
	if err != nil {
		return errors.Internal("Failed to update presence", err)
	}
	return nil
}

func (r *firestorePresenceRepository) Get(ctx context.Context, userID string) (*entity.Presence, error) {
	doc, err := r.client.Collection(presenceCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Presence", err)
		}
		return nil, errors.Internal("Failed to get presence", err)
	}
	return parsePresence(userID, doc)
}

func (r *firestorePresenceRepository) Watch(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) (repository.Unsubscribe, error) {
	ref := r.client.Collection(presenceCollection).Doc(userID)
	return watchDoc(ctx, "presence/"+userID, ref, func(snap *firestore.DocumentSnapshot) error {
		if !snap.Exists() {
			onChange(nil)
			return nil
		}
		p, err := parsePresence(userID, snap)
		if err != nil {
			return err
		}
		onChange(p)
		return nil
	}, onError), nil
}

func parsePresence(userID string, doc *firestore.DocumentSnapshot) (*entity.Presence, error) {
	var p entity.Presence
	if err := doc.DataTo(&p); err != nil {
		return nil, errors.Internal("Failed to parse presence data", err)
	}
	p.UserID = userID
	return &p, nil
}
