// Package notify is the external-notification contract: trade and
// circuit-breaker events are handed to a Sender, but the wire format and
// destination (Telegram, Discord, email) are outside this engine's scope.
// Grounded on the teacher's Notifier interface, trimmed to the contract
// alone — NoopSender is the only implementation this module ships.
package notify

import "time"

// Kind classifies a notification's subject.
type Kind string

const (
	KindTradeOpened  Kind = "TRADE_OPENED"
	KindTradeClosed  Kind = "TRADE_CLOSED"
	KindCircuitTrip  Kind = "CIRCUIT_BREAKER_TRIP"
	KindEngineDown   Kind = "ENGINE_DOWN"
)

// Message is a single outbound notification.
type Message struct {
	Kind      Kind
	Engine    string
	Symbol    string
	Text      string
	Timestamp time.Time
}

// Sender delivers a Message to whatever external channel the operator has
// configured. Implementations must not block the caller for long; a slow
// or failing Sender should never stall the engine that reports to it.
type Sender interface {
	Send(m Message) error
}

// NoopSender discards every message. It is the default Sender when no
// notification channel is configured.
type NoopSender struct{}

func (NoopSender) Send(Message) error { return nil }
