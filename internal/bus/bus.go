package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/metrics"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

// DefaultQueryTimeout bounds [Bus.QueryCurrentlyPlaying].
const DefaultQueryTimeout = 2 * time.Second

// Options configures a [Bus].
type Options struct {
	Transport    Transport
	Prefix       string        // Defaults to [DefaultPrefix]
	QueryTimeout time.Duration // Defaults to [DefaultQueryTimeout]
	Logger       *log.Logger

	OnPlaybackStarted func(fullID string)
	OnCorrupted       func(fullID string)
}

// Bus exchanges events with the renderer.
type Bus struct {
	transport    Transport
	prefix       string
	queryTimeout time.Duration
	logger       *log.Logger

	hookMu            sync.RWMutex
	onPlaybackStarted func(string)
	onCorrupted       func(string)

	subMu sync.Mutex
	sub   Subscription

	queryMu sync.Mutex
	pending map[string]chan string
	order   []string // outstanding tokens, oldest first
}

// New creates a bus over opts.Transport.
func New(opts Options) (*Bus, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport", shared.ErrMissingArgument)
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Bus{
		transport:         opts.Transport,
		prefix:            opts.Prefix,
		queryTimeout:      opts.QueryTimeout,
		logger:            shared.WithLogger(opts.Logger, "component", "bus"),
		onPlaybackStarted: opts.OnPlaybackStarted,
		onCorrupted:       opts.OnCorrupted,
		pending:           make(map[string]chan string),
	}, nil
}

// Prefix returns the channel namespace.
func (b *Bus) Prefix() string { return b.prefix }

// OnPlaybackStarted replaces the playback hook.
func (b *Bus) OnPlaybackStarted(fn func(fullID string)) {
	b.hookMu.Lock()
	b.onPlaybackStarted = fn
	b.hookMu.Unlock()
}

// OnCorrupted replaces the corrupted-file hook.
func (b *Bus) OnCorrupted(fn func(fullID string)) {
	b.hookMu.Lock()
	b.onCorrupted = fn
	b.hookMu.Unlock()
}

// Subscribe registers for every event in the namespace.
//
// Calling it before [Bus.Listen] guarantees no event published afterwards is missed.
func (b *Bus) Subscribe(ctx context.Context) error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.sub != nil {
		return nil
	}

	sub, err := b.transport.Subscribe(ctx, b.prefix+"ES*")
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	b.sub = sub
	return nil
}

// Listen dispatches inbound events until ctx is done or the subscription ends.
func (b *Bus) Listen(ctx context.Context) error {
	if err := b.Subscribe(ctx); err != nil {
		return err
	}

	b.subMu.Lock()
	msgs := b.sub.Messages()
	b.subMu.Unlock()

	b.logger.Info("listening", "pattern", b.prefix+"ES*")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return shared.ErrBusClosed
			}
			b.handle(ctx, msg)
		}
	}
}

// Close ends the subscription. The transport is left open.
func (b *Bus) Close() error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	b.sub = nil
	return err
}

func (b *Bus) handle(ctx context.Context, msg Message) {
	ev, err := Decode(b.prefix, msg.Channel, msg.Body)
	if err != nil {
		b.logger.Debug("ignoring message", "channel", msg.Channel, "err", err)
		return
	}
	metrics.RecordBusEvent("in", string(ev.Kind))

	switch ev.Kind {
	case Ping:
		b.logger.Debug("ping received")
		if err := b.SendPong(ctx); err != nil {
			b.logger.Warn("failed to send pong", "err", err)
		}
	case SheepPlaying:
		if ev.Payload == "" {
			return
		}
		b.logger.Debug("renderer playing", "id", ev.Payload)
		b.answer(ev.Token, ev.Payload)
	case PlaybackStarted:
		if ev.Payload == "" {
			return
		}
		b.logger.Debug("playback started", "id", ev.Payload)
		b.answer(ev.Token, ev.Payload)

		b.hookMu.RLock()
		fn := b.onPlaybackStarted
		b.hookMu.RUnlock()
		if fn != nil {
			fn(ev.Payload)
		}
	case CorruptedFile:
		if ev.Payload == "" {
			return
		}
		b.logger.Warn("renderer reported corrupted file", "id", ev.Payload)

		b.hookMu.RLock()
		fn := b.onCorrupted
		b.hookMu.RUnlock()
		if fn != nil {
			fn(ev.Payload)
		}
	default:
		// Our own outbound events come back through the pattern subscription.
	}
}

// Publish validates, encodes and sends ev on its channel.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now().UTC()
	}
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := b.transport.Publish(ctx, ev.Kind.Channel(b.prefix), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Kind, err)
	}
	metrics.RecordBusEvent("out", string(ev.Kind))
	return nil
}

// BroadcastCompanionLaunched announces the agent and its capabilities.
func (b *Bus) BroadcastCompanionLaunched(ctx context.Context) error {
	b.logger.Info("broadcasting launch", "capabilities", Capabilities)
	return b.Publish(ctx, Event{Kind: CompanionLaunched, Payload: Capabilities})
}

// BroadcastCacheUpdated tells the renderer to rescan the store.
func (b *Bus) BroadcastCacheUpdated(ctx context.Context) error {
	b.logger.Info("broadcasting cache updated")
	return b.Publish(ctx, Event{Kind: CacheUpdated})
}

// SendVoteFeedback confirms an accepted vote.
func (b *Bus) SendVoteFeedback(ctx context.Context, d models.Direction) error {
	return b.Publish(ctx, Event{Kind: VoteFeedback, Payload: string(d)})
}

// SendPong answers a ping.
func (b *Bus) SendPong(ctx context.Context) error {
	return b.Publish(ctx, Event{Kind: Pong})
}

// QueryCurrentlyPlaying asks the renderer which item is on screen.
//
// It returns false when nothing answers within the query timeout, when ctx ends first,
// or when the query cannot be sent.
func (b *Bus) QueryCurrentlyPlaying(ctx context.Context) (string, bool) {
	token := shared.GenerateID()
	reply := make(chan string, 1)

	b.queryMu.Lock()
	b.pending[token] = reply
	b.order = append(b.order, token)
	b.queryMu.Unlock()
	defer b.forget(token)

	if err := b.Publish(ctx, Event{Kind: QueryCurrent, Token: token}); err != nil {
		b.logger.Warn("failed to query renderer", "err", err)
		return "", false
	}

	timer := time.NewTimer(b.queryTimeout)
	defer timer.Stop()

	select {
	case id := <-reply:
		return id, true
	case <-timer.C:
		b.logger.Debug("query timed out", "token", token)
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// answer resolves the query named by token, or the most recent outstanding query when token is empty.
func (b *Bus) answer(token, id string) {
	b.queryMu.Lock()
	defer b.queryMu.Unlock()

	if token == "" {
		if len(b.order) == 0 {
			return
		}
		token = b.order[len(b.order)-1]
	}

	reply, ok := b.pending[token]
	if !ok {
		return
	}
	reply <- id
	b.removeLocked(token)
}

func (b *Bus) forget(token string) {
	b.queryMu.Lock()
	b.removeLocked(token)
	b.queryMu.Unlock()
}

func (b *Bus) removeLocked(token string) {
	delete(b.pending, token)
	for i, t := range b.order {
		if t == token {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// Outstanding returns the number of queries waiting for an answer.
func (b *Bus) Outstanding() int {
	b.queryMu.Lock()
	defer b.queryMu.Unlock()
	return len(b.pending)
}

// IsClosed reports whether err signals a closed bus.
func IsClosed(err error) bool {
	return errors.Is(err, shared.ErrBusClosed)
}
