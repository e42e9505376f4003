package repository

import (
	"context"
	"log"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"adchat/internal/domain/repository"
)

// watchQuery runs a snapshot listener on q in its own goroutine and hands
// every snapshot to handle. The listener stops when the returned func is
// called, when ctx ends, or after the first error, which goes to onError.
func watchQuery(ctx context.Context, name string, q firestore.Query, handle func(*firestore.QuerySnapshot) error, onError func(error)) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err == nil {
				err = handle(snap)
			}
			if err != nil {
				if stopped(ctx, err) {
					return
				}
				log.Printf("Watch %s Error: %v", name, err)
				if onError != nil {
					onError(err)
				}
				return
			}
		}
	}()

	return onceFunc(cancel)
}

// watchDoc is watchQuery for a single document. Missing documents are
// delivered as a snapshot whose Exists reports false.
func watchDoc(ctx context.Context, name string, ref *firestore.DocumentRef, handle func(*firestore.DocumentSnapshot) error, onError func(error)) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := ref.Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err == nil {
				err = handle(snap)
			}
			if err != nil {
				if stopped(ctx, err) {
					return
				}
				log.Printf("Watch %s Error: %v", name, err)
				if onError != nil {
					onError(err)
				}
				return
			}
		}
	}()

	return onceFunc(cancel)
}

func stopped(ctx context.Context, err error) bool {
	return err == iterator.Done || ctx.Err() != nil || status.Code(err) == codes.Canceled
}

func onceFunc(f func()) repository.Unsubscribe {
	var once sync.Once
	return func() { once.Do(f) }
}
