// Package events is the engine's internal pub/sub bus, carrying lifecycle
// notifications between the engine, orchestrator, and status API.
package events

import (
	"sync"
	"time"
)

// EventType enumerates the domain events this engine emits.
type EventType string

const (
	EventTradeOpened        EventType = "TRADE_OPENED"
	EventTradeClosed        EventType = "TRADE_CLOSED"
	EventPositionUpdate     EventType = "POSITION_UPDATE"
	EventSignalGenerated    EventType = "SIGNAL_GENERATED"
	EventSignalRejected     EventType = "SIGNAL_REJECTED"
	EventEngineStarted      EventType = "ENGINE_STARTED"
	EventEngineStopped      EventType = "ENGINE_STOPPED"
	EventEngineRestarted    EventType = "ENGINE_RESTARTED"
	EventCircuitBreakerTrip EventType = "CIRCUIT_BREAKER_TRIP"
	EventError              EventType = "ERROR"
)

// Event is a single published occurrence.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber handles an Event.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish dispatches event to every matching subscriber in its own
// goroutine so a slow subscriber never blocks the publisher.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a TRADE_OPENED event.
func (b *Bus) PublishTradeOpened(symbol string, side string, entryPrice, quantity float64) {
	b.Publish(Event{Type: EventTradeOpened, Data: map[string]interface{}{
		"symbol": symbol, "side": side, "entry_price": entryPrice, "quantity": quantity,
	}})
}

// PublishTradeClosed publishes a TRADE_CLOSED event.
func (b *Bus) PublishTradeClosed(symbol string, entryPrice, exitPrice, quantity, pnl float64, reason string) {
	b.Publish(Event{Type: EventTradeClosed, Data: map[string]interface{}{
		"symbol": symbol, "entry_price": entryPrice, "exit_price": exitPrice,
		"quantity": quantity, "pnl": pnl, "reason": reason,
	}})
}

// PublishSignalRejected publishes a SIGNAL_REJECTED event with the gate's
// rejection reason.
func (b *Bus) PublishSignalRejected(symbol, reason string) {
	b.Publish(Event{Type: EventSignalRejected, Data: map[string]interface{}{
		"symbol": symbol, "reason": reason,
	}})
}

// PublishEngineRestarted publishes an ENGINE_RESTARTED event.
func (b *Bus) PublishEngineRestarted(engine string, restartCount int) {
	b.Publish(Event{Type: EventEngineRestarted, Data: map[string]interface{}{
		"engine": engine, "restart_count": restartCount,
	}})
}

// PublishError publishes an ERROR event.
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{"source": source, "message": message}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
