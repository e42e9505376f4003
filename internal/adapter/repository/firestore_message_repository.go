package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/pkg/errors"
)

type firestoreMessageRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
		now:    time.Now,
	}
}

func (r *firestoreMessageRepository) messages(threadID string) *firestore.CollectionRef {
	return r.client.Collection(fanout.ThreadsCollection).Doc(threadID).Collection(fanout.MessagesSubcollection)
}

// latest is the newest-first window. Equal createdAt values are ordered by
// document id, which is time ordered.
func (r *firestoreMessageRepository) latest(threadID string, limit int) firestore.Query {
	query := r.messages(threadID).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return query
}

func (r *firestoreMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Internal("Failed to generate message id", err)
	}
	message.ID = id.String()
	message.CreatedAt = r.now().UTC()
	message.TimeStamp = message.CreatedAt.UnixMilli()
	if message.ReadBy == nil {
		message.ReadBy = []string{}
	}

	if _, err := r.messages(message.ThreadID).Doc(message.ID).Create(ctx, message); err != nil {
		return errors.Internal("Failed to create message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, threadID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(threadID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	message.ID = doc.Ref.ID
	return &message, nil
}

func (r *firestoreMessageRepository) ListLatest(ctx context.Context, threadID string, limit int) ([]*entity.Message, error) {
	docs, err := r.latest(threadID, limit).Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while listing messages for thread %s: %v", threadID, err)
		return nil, errors.Internal("Failed to list messages", err)
	}
	return parseMessages(threadID, docs)
}

func (r *firestoreMessageRepository) WatchLatest(ctx context.Context, threadID string, limit int, onChange func([]*entity.Message), onError func(error)) (repository.Unsubscribe, error) {
	return watchQuery(ctx, "messages/"+threadID, r.latest(threadID, limit), func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		messages, err := parseMessages(threadID, docs)
		if err != nil {
			return err
		}
		onChange(messages)
		return nil
	}, onError), nil
}

func (r *firestoreMessageRepository) MarkRead(ctx context.Context, threadID, messageID, userID string) error {
	return r.update(ctx, threadID, messageID, []firestore.Update{
		{Path: "isRead", Value: true},
		{Path: "readBy", Value: firestore.ArrayUnion(userID)},
	})
}

func (r *firestoreMessageRepository) UpdateText(ctx context.Context, threadID, messageID, text string) error {
	return r.update(ctx, threadID, messageID, []firestore.Update{
		{Path: "text", Value: text},
		{Path: "isEdited", Value: true},
	})
}

func (r *firestoreMessageRepository) update(ctx context.Context, threadID, messageID string, updates []firestore.Update) error {
	_, err := r.messages(threadID).Doc(messageID).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to update message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) Delete(ctx context.Context, threadID, messageID string) error {
	ref := r.messages(threadID).Doc(messageID)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to delete message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) DeleteAllForThread(ctx context.Context, threadID string) error {
	bw := r.client.BulkWriter(ctx)
	iter := r.messages(threadID).DocumentRefs(ctx)
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return errors.Internal("Failed to iterate messages", err)
		}
		if _, err := bw.Delete(ref); err != nil {
			bw.End()
			return errors.Internal("Failed to delete messages", err)
		}
	}
	bw.End()
	return nil
}

func parseMessages(threadID string, docs []*firestore.DocumentSnapshot) ([]*entity.Message, error) {
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for thread %s: %v", threadID, err)
			return nil, errors.Internal("Failed to parse message data", err)
		}
		message.ID = doc.Ref.ID
		messages = append(messages, &message)
	}
	return messages, nil
}
