package event

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Handler receives events. Handlers run on the publishing goroutine, which
// for node events is the connection's read loop, so they must not block.
type Handler func(Event)

// Token identifies a subscription.
type Token string

// anyKind subscribes to every event.
const anyKind Kind = ""

type subscription struct {
	token   Token
	kind    Kind
	handler Handler
}

// Bus manages subscriptions and delivers events in subscription order.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
	seq  uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for one kind and returns its token.
func (b *Bus) Subscribe(kind Kind, h Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	tok := Token(uuid.New().String())
	b.subs = append(b.subs, &subscription{token: tok, kind: kind, handler: h})
	return tok
}

// SubscribeAll registers a handler for every kind.
func (b *Bus) SubscribeAll(h Handler) Token {
	return b.Subscribe(anyKind, h)
}

// Unsubscribe removes a subscription. It reports whether the token was known.
func (b *Bus) Unsubscribe(tok Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.subs, func(s *subscription) bool { return s.token == tok })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Publish delivers e to every matching handler. A panicking handler is
// logged and does not stop delivery to the rest.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == anyKind || s.kind == e.Kind() {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		deliver(s, e, seq)
	}
}

func deliver(s *subscription, e Event, seq uint64) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("event handler panicked: kind=%s seq=%d token=%s panic=%v", e.Kind(), seq, s.token, r)
		}
	}()
	s.handler(e)
}

// Published returns how many events have been published.
func (b *Bus) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// Count returns the number of active subscriptions.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// On subscribes a handler typed to a single event type.
//
//	event.On(bus, func(e event.TrackEnd) { ... })
func On[E Event](b *Bus, fn func(E)) Token {
	var zero E
	return b.Subscribe(zero.Kind(), func(e Event) {
		if typed, ok := e.(E); ok {
			fn(typed)
		}
	})
}
