package usecase

import (
	"context"
	"sync"
	"time"

	"adchat/internal/adapter/repository/memory"
	"adchat/internal/fanout"
)

type testEnv struct {
	store    *memory.Store
	threads  *ThreadUseCase
	messages *MessageUseCase
	presence *PresenceUseCase
	tickets  *TicketUseCase
}

const testAgentID = "support"

func newTestEnv() *testEnv {
	clock := steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store := memory.New().WithClock(clock)
	writer := fanout.NewWriter(store).WithClock(clock)
	threads := NewThreadUseCase(store.Threads(), store.Index(), store.Messages(), writer)
	messages := NewMessageUseCase(store.Threads(), store.Messages(), writer)
	return &testEnv{
		store:    store,
		threads:  threads,
		messages: messages,
		presence: NewPresenceUseCase(store.Presence(), 0),
		tickets: NewTicketUseCase(store.Tickets(), threads, messages, SupportAgent{ID: testAgentID, Name: "Support"}).
			WithClock(clock),
	}
}

// steppingClock returns a clock that advances one second per call, so every
// write in a test gets a distinct timestamp.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	var n int
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

var ctx = context.Background()
