package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
	"github.com/malbeclabs/calldash/api/metrics"
)

// Sink is one live-update subscriber.
type Sink interface {
	ID() string
	Write(frame []byte) error
}

var connectedFrame = []byte(`{"type":"connected"}`)

type BroadcasterConfig struct {
	Logger *slog.Logger
}

func (cfg *BroadcasterConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Broadcaster fans change events out to the current set of sinks. Delivery is
// best effort: a sink whose write fails is dropped and the others still receive the frame.
type Broadcaster struct {
	log *slog.Logger

	// pubMu serializes publishes so frames reach every sink in publish order.
	pubMu sync.Mutex

	mu      sync.RWMutex
	sinks   []Sink
	members map[Sink]struct{}
}

func NewBroadcaster(cfg BroadcasterConfig) (*Broadcaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Broadcaster{
		log:     cfg.Logger,
		members: make(map[Sink]struct{}),
	}, nil
}

// Subscribe sends the connected frame to s and adds it to the set. Subscribing a
// sink that is already a member does nothing.
func (b *Broadcaster) Subscribe(s Sink) error {
	b.mu.RLock()
	_, ok := b.members[s]
	b.mu.RUnlock()
	if ok {
		return nil
	}

	if err := s.Write(connectedFrame); err != nil {
		return fmt.Errorf("failed to send connected frame: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[s]; ok {
		return nil
	}
	b.members[s] = struct{}{}
	b.sinks = append(b.sinks, s)
	metrics.Subscribers.Set(float64(len(b.sinks)))
	b.log.Debug("events: subscribed", "sink", s.ID(), "subscribers", len(b.sinks))
	return nil
}

func (b *Broadcaster) Unsubscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[s]; !ok {
		return
	}
	delete(b.members, s)
	for i, cur := range b.sinks {
		if cur == s {
			b.sinks = append(b.sinks[:i:i], b.sinks[i+1:]...)
			break
		}
	}
	metrics.Subscribers.Set(float64(len(b.sinks)))
	b.log.Debug("events: unsubscribed", "sink", s.ID(), "subscribers", len(b.sinks))
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Publish serializes ev once and writes it to every sink in subscription order.
func (b *Broadcaster) Publish(ev ChangeEvent) {
	frame, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("events: failed to encode event", "type", ev.Type, "error", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Write(frame); err != nil {
			b.log.Debug("events: dropping sink after failed write", "sink", s.ID(), "error", err)
			b.Unsubscribe(s)
		}
	}
}

// PublishAll publishes evs in order.
func (b *Broadcaster) PublishAll(evs []ChangeEvent) {
	for _, ev := range evs {
		b.Publish(ev)
	}
}
