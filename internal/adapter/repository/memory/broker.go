package memory

import (
	"context"
	"sync"

	"adchat/internal/domain/repository"
)

// watcher re-reads its view and hands it to the listener. Deliveries to one
// watcher are serialized, and each reads the store after the previous one
// finished, so the last delivery always reflects the latest state.
type watcher struct {
	id      uint64
	topic   string
	mu      sync.Mutex
	closed  bool
	deliver func()
}

func (w *watcher) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.deliver()
}

func (w *watcher) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

type broker struct {
	mu     sync.Mutex
	next   uint64
	topics map[string]map[uint64]*watcher
}

func newBroker() *broker {
	return &broker{topics: make(map[string]map[uint64]*watcher)}
}

func (b *broker) add(topic string, deliver func()) *watcher {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	w := &watcher{id: b.next, topic: topic, deliver: deliver}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]*watcher)
	}
	b.topics[topic][w.id] = w
	return w
}

func (b *broker) remove(w *watcher) {
	b.mu.Lock()
	if ws, ok := b.topics[w.topic]; ok {
		delete(ws, w.id)
		if len(ws) == 0 {
			delete(b.topics, w.topic)
		}
	}
	b.mu.Unlock()
	w.close()
}

func (b *broker) publish(topics map[string]struct{}) {
	var targets []*watcher
	b.mu.Lock()
	for topic := range topics {
		for _, w := range b.topics[topic] {
			targets = append(targets, w)
		}
	}
	b.mu.Unlock()

	for _, w := range targets {
		w.fire()
	}
}

func (b *broker) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// watch registers deliver on topic, runs it once for the initial state, and
// unregisters when the returned func is called or ctx ends.
func (s *Store) watch(ctx context.Context, topic string, deliver func()) repository.Unsubscribe {
	w := s.broker.add(topic, deliver)
	w.fire()

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			s.broker.remove(w)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-done:
		}
	}()
	return unsubscribe
}

func threadTopic(threadID string) string   { return "thread/" + threadID }
func indexTopic(userID string) string      { return "index/" + userID }
func messagesTopic(threadID string) string { return "messages/" + threadID }
func presenceTopic(userID string) string   { return "presence/" + userID }
