package repository

import (
	"context"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/pkg/errors"
)

type firestoreThreadRepository struct {
	client *firestore.Client
}

func NewFirestoreThreadRepository(client *firestore.Client) repository.ThreadRepository {
	return &firestoreThreadRepository{
		client: client,
	}
}

func (r *firestoreThreadRepository) GetByID(ctx context.Context, id string) (*entity.Thread, error) {
	doc, err := r.client.Collection(fanout.ThreadsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Thread", err)
		}
		return nil, errors.Internal("Failed to get thread", err)
	}

	var thread entity.Thread
	if err := doc.DataTo(&thread); err != nil {
		return nil, errors.Internal("Failed to parse thread data", err)
	}
	thread.ID = doc.Ref.ID
	return &thread, nil
}

func (r *firestoreThreadRepository) Watch(ctx context.Context, id string, onChange func(*entity.Thread), onError func(error)) (repository.Unsubscribe, error) {
	ref := r.client.Collection(fanout.ThreadsCollection).Doc(id)
	return watchDoc(ctx, "thread/"+id, ref, func(snap *firestore.DocumentSnapshot) error {
		if !snap.Exists() {
			onChange(nil)
			return nil
		}
		var thread entity.Thread
		if err := snap.DataTo(&thread); err != nil {
			return errors.Internal("Failed to parse thread data", err)
		}
		thread.ID = snap.Ref.ID
		onChange(&thread)
		return nil
	}, onError), nil
}

type firestoreIndexRepository struct {
	client *firestore.Client
}

func NewFirestoreIndexRepository(client *firestore.Client) repository.IndexRepository {
	return &firestoreIndexRepository{
		client: client,
	}
}

func (r *firestoreIndexRepository) query(userID string, kind entity.ThreadKind) firestore.Query {
	query := r.client.Collection(fanout.UserThreadsCollection).Doc(userID).
		Collection(fanout.IndexSubcollection).Query
	if kind != "" {
		query = query.Where("kind", "==", string(kind))
	}
	return query.OrderBy("updatedAt", firestore.Desc)
}

func (r *firestoreIndexRepository) ListByUser(ctx context.Context, userID string, kind entity.ThreadKind) ([]*entity.IndexEntry, error) {
	docs, err := r.query(userID, kind).Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while listing index for user %s: %v", userID, err)
		return nil, errors.Internal("Failed to list threads", err)
	}
	return parseIndexEntries(userID, docs)
}

func (r *firestoreIndexRepository) WatchByUser(ctx context.Context, userID string, kind entity.ThreadKind, onChange func([]*entity.IndexEntry), onError func(error)) (repository.Unsubscribe, error) {
	return watchQuery(ctx, "index/"+userID, r.query(userID, kind), func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		entries, err := parseIndexEntries(userID, docs)
		if err != nil {
			return err
		}
		onChange(entries)
		return nil
	}, onError), nil
}

func parseIndexEntries(userID string, docs []*firestore.DocumentSnapshot) ([]*entity.IndexEntry, error) {
	entries := make([]*entity.IndexEntry, 0, len(docs))
	for _, doc := range docs {
		var entry entity.IndexEntry
		if err := doc.DataTo(&entry); err != nil {
			log.Printf("Error parsing index entry %s for user %s: %v", doc.Ref.ID, userID, err)
			return nil, errors.Internal("Failed to parse index entry", err)
		}
		entry.UserID = userID
		entry.ThreadID = doc.Ref.ID
		entries = append(entries, &entry)
	}
	return entries, nil
}
