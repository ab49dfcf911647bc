package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/desertthunder/sheepd/internal/shared"
)

// Message is a raw delivery from a [Transport].
type Message struct {
	Channel string
	Body    []byte
}

// Subscription delivers messages until closed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Transport moves raw messages between processes.
//
// Delivery is fire-and-forget: at most once, unordered, no retry.
// Patterns support a single trailing "*".
type Transport interface {
	Publish(ctx context.Context, channel string, body []byte) error
	Subscribe(ctx context.Context, pattern string) (Subscription, error)
	Close() error
}

// MemoryTransport delivers messages between subscribers in the same process.
type MemoryTransport struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryTransport creates an empty in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[*memorySubscription]struct{})}
}

// Publish delivers body to every matching subscriber, dropping it for subscribers whose buffer is full.
func (t *MemoryTransport) Publish(ctx context.Context, channel string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return shared.ErrBusClosed
	}

	msg := Message{Channel: channel, Body: append([]byte(nil), body...)}
	for sub := range t.subs {
		if !matchPattern(sub.pattern, channel) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered subscriber for pattern.
func (t *MemoryTransport) Subscribe(ctx context.Context, pattern string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, shared.ErrBusClosed
	}

	sub := &memorySubscription{pattern: pattern, ch: make(chan Message, 64), owner: t}
	t.subs[sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for sub := range t.subs {
		close(sub.ch)
		delete(t.subs, sub)
	}
	return nil
}

type memorySubscription struct {
	pattern string
	ch      chan Message
	owner   *MemoryTransport
}

func (s *memorySubscription) Messages() <-chan Message { return s.ch }

func (s *memorySubscription) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if _, ok := s.owner.subs[s]; ok {
		delete(s.owner.subs, s)
		close(s.ch)
	}
	return nil
}

func matchPattern(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}
