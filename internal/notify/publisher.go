// Package notify fans out engine events to interested consumers.
package notify

import (
	"context"
	"log"
)

// EventType identifies what happened.
type EventType string

const (
	EventTokenCreated EventType = "TOKEN_CREATED"
	EventTradeApplied EventType = "TRADE_APPLIED"
	EventPriceUpdated EventType = "PRICE_UPDATED"
	EventGraduated    EventType = "GRADUATED"
)

// Event is one engine occurrence. Payload carries the event-specific
// record (trade, state, graduation record).
type Event struct {
	Type    EventType
	TokenID string
	At      int64 // unix ms
	Payload interface{}
}

// Publisher delivers events. Implementations must not block the caller
// indefinitely; slow consumers drop rather than stall the apply path.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// LogPublisher writes events to a logger.
type LogPublisher struct {
	logger *log.Logger
}

// NewLogPublisher creates a log-backed publisher.
func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) {
	p.logger.Printf("[events] %s token=%s at=%d", ev.Type, ev.TokenID, ev.At)
}

// ChannelPublisher delivers events to a buffered channel. Events are
// dropped when the buffer is full so the apply path never blocks.
type ChannelPublisher struct {
	ch      chan Event
	dropped func(Event)
}

// NewChannelPublisher creates a channel publisher with the given buffer
// size. onDrop, if non-nil, is called for each dropped event.
func NewChannelPublisher(buffer int, onDrop func(Event)) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelPublisher{
		ch:      make(chan Event, buffer),
		dropped: onDrop,
	}
}

// Events returns the receive side of the publisher.
func (p *ChannelPublisher) Events() <-chan Event {
	return p.ch
}

func (p *ChannelPublisher) Publish(_ context.Context, ev Event) {
	select {
	case p.ch <- ev:
	default:
		if p.dropped != nil {
			p.dropped(ev)
		}
	}
}

// MultiPublisher delivers each event to every wrapped publisher.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev Event) {
	for _, p := range m {
		p.Publish(ctx, ev)
	}
}

var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*ChannelPublisher)(nil)
	_ Publisher = (MultiPublisher)(nil)
)
