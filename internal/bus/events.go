package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultPrefix namespaces every channel on the bus.
const DefaultPrefix = "org.electricsheep."

// Capabilities is the descriptor carried by [CompanionLaunched].
const Capabilities = "voting=1,rendering=0,gold=0"

// separator splits a base name from its payload in legacy name-suffixed messages.
const separator = "."

// Kind names an event without its prefix.
type Kind string

const (
	// Outbound
	CompanionLaunched Kind = "CompanionLaunched"
	CacheUpdated      Kind = "CacheUpdated"
	Pong              Kind = "Pong"
	VoteFeedback      Kind = "VoteFeedback"
	QueryCurrent      Kind = "QueryCurrent"

	// Inbound
	Ping            Kind = "Ping"
	SheepPlaying    Kind = "SheepPlaying"
	PlaybackStarted Kind = "PlaybackStarted"
	CorruptedFile   Kind = "CorruptedFile"
)

var kinds = map[Kind]struct{}{
	CompanionLaunched: {},
	CacheUpdated:      {},
	Pong:              {},
	VoteFeedback:      {},
	QueryCurrent:      {},
	Ping:              {},
	SheepPlaying:      {},
	PlaybackStarted:   {},
	CorruptedFile:     {},
}

// Known reports whether k is part of the protocol.
func (k Kind) Known() bool {
	_, ok := kinds[k]
	return ok
}

// Channel returns the wire name "{prefix}ES{kind}".
func (k Kind) Channel(prefix string) string {
	return prefix + "ES" + string(k)
}

// Event is one message on the bus.
//
// Token correlates a [QueryCurrent] with its answer and is empty otherwise.
type Event struct {
	Kind    Kind      `msgpack:"kind"`
	Payload string    `msgpack:"payload,omitempty"`
	Token   string    `msgpack:"token,omitempty"`
	SentAt  time.Time `msgpack:"sent_at"`
}

// Validate rejects events that cannot be represented on the wire.
func (e Event) Validate() error {
	if !e.Kind.Known() {
		return fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidPayload, e.Kind)
	}
	if strings.Contains(e.Payload, separator) {
		return fmt.Errorf("%w: payload %q contains %q", shared.ErrInvalidPayload, e.Payload, separator)
	}
	return nil
}

// Encode serializes the event envelope.
func Encode(e Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", e.Kind, err)
	}
	return data, nil
}

// Decode turns a message received on channel into an [Event].
//
// A non-empty body is a msgpack envelope. An empty body is a legacy message whose
// payload, if any, follows the base name after a single separator:
// "org.electricsheep.ESPlaybackStarted.248=12345=0=240".
func Decode(prefix, channel string, body []byte) (Event, error) {
	if len(body) > 0 {
		var e Event
		if err := msgpack.Unmarshal(body, &e); err != nil {
			return Event{}, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
		}
		if e.Kind == "" {
			k, _, err := parseChannel(prefix, channel)
			if err != nil {
				return Event{}, err
			}
			e.Kind = k
		}
		if !e.Kind.Known() {
			return Event{}, fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidPayload, e.Kind)
		}
		return e, nil
	}

	k, payload, err := parseChannel(prefix, channel)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: k, Payload: payload}, nil
}

// parseChannel splits "{prefix}ES{kind}[.{payload}]" by exact base name match.
func parseChannel(prefix, channel string) (Kind, string, error) {
	rest, ok := strings.CutPrefix(channel, prefix+"ES")
	if !ok {
		return "", "", fmt.Errorf("%w: channel %q outside namespace", shared.ErrInvalidPayload, channel)
	}

	name, payload, _ := strings.Cut(rest, separator)
	k := Kind(name)
	if !k.Known() {
		return "", "", fmt.Errorf("%w: unknown event %q", shared.ErrInvalidPayload, name)
	}
	return k, payload, nil
}
