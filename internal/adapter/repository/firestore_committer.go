package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"adchat/internal/domain/entity"
	"adchat/internal/fanout"
	"adchat/pkg/errors"
)

type firestoreCommitter struct {
	client *firestore.Client
}

// NewFirestoreCommitter applies fan-out change sets inside one Firestore
// transaction, so either every document in the set changes or none does.
func NewFirestoreCommitter(client *firestore.Client) fanout.Committer {
	return &firestoreCommitter{
		client: client,
	}
}

func (c *firestoreCommitter) Commit(ctx context.Context, cs *fanout.ChangeSet) error {
	writes := cs.Writes()
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refs := make([]*firestore.DocumentRef, len(writes))
		for i, w := range writes {
			refs[i] = c.docRef(w.Ref)
			if refs[i] == nil {
				return fmt.Errorf("unknown document kind %d", w.Ref.Kind)
			}
		}

		// Firestore transactions read before they write.
		stored := make([]time.Time, len(writes))
		for i, w := range writes {
			if w.Op != fanout.OpUpdate || !w.Conditional() {
				continue
			}
			snap, err := tx.Get(refs[i])
			if err != nil {
				return err
			}
			stored[i] = lastMessageAt(snap)
		}

		for i, w := range writes {
			ref := refs[i]

			var err error
			switch w.Op {
			case fanout.OpCreate:
				err = tx.Create(ref, w.Data)
			case fanout.OpUpdate:
				updates := toFirestoreUpdates(w.Fields, stored[i])
				if len(updates) == 0 {
					continue
				}
				err = tx.Update(ref, updates)
			case fanout.OpDelete:
				err = tx.Delete(ref)
			default:
				err = fmt.Errorf("unsupported op %s", w.Op)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Commit %s Error: %v", cs.Label(), err)
		switch status.Code(err) {
		case codes.NotFound:
			return errors.NotFound("Thread", err)
		case codes.AlreadyExists:
			return errors.Conflict(fmt.Sprintf("Failed to commit %s: document already exists", cs.Label()), err)
		}
		return errors.Internal(fmt.Sprintf("Failed to commit %s", cs.Label()), err)
	}
	return nil
}

func (c *firestoreCommitter) docRef(ref fanout.DocRef) *firestore.DocumentRef {
	switch ref.Kind {
	case fanout.ThreadDoc:
		return c.client.Collection(fanout.ThreadsCollection).Doc(ref.ThreadID)
	case fanout.IndexDoc:
		return c.client.Collection(fanout.UserThreadsCollection).Doc(ref.UserID).
			Collection(fanout.IndexSubcollection).Doc(ref.ThreadID)
	}
	return nil
}

// toFirestoreUpdates turns field writes into Firestore updates. Increments
// become server-side transforms, never read-modify-write. IfNewer fields
// are dropped when the summary stored at storedAt is more recent.
func toFirestoreUpdates(fields []fanout.Field, storedAt time.Time) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for _, f := range fields {
		value := f.Value
		if guard, ok := value.(fanout.IfNewer); ok {
			if !guard.Applies(storedAt) {
				continue
			}
			value = guard.Value
		}
		if inc, ok := value.(fanout.Increment); ok {
			value = firestore.Increment(inc.N)
		}
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath(f.Path),
			Value:     value,
		})
	}
	return updates
}

// lastMessageAt is the createdAt of the document's lastMessage, or the zero
// time when it has none.
func lastMessageAt(snap *firestore.DocumentSnapshot) time.Time {
	v, err := snap.DataAt(entity.FieldLastMessage + ".createdAt")
	if err != nil {
		return time.Time{}
	}
	at, _ := v.(time.Time)
	return at
}
