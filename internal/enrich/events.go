package enrich

import (
	"context"
	"time"

	"cardcat/internal/card"
)

// Event names as they appear on the wire.
const (
	EventHandshake  = "handshake"
	EventCardFound  = "card-found"
	EventPrintFound = "print-found"
	EventCardError  = "card-error"
	EventProgress   = "progress"
	EventDone       = "done"
	EventFatal      = "fatal-error"
	EventHeartbeat  = "heartbeat"
)

// Event is one frame of a stream.
type Event struct {
	Name string
	Data any
}

// Terminal reports whether the event ends a stream.
func (e Event) Terminal() bool {
	return e.Name == EventDone || e.Name == EventFatal
}

// Sink receives stream events. Send is never called concurrently.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Handshake opens a stream.
type Handshake struct {
	SessionID string `json:"sessionId"`
	Total     int    `json:"total"`
	Mode      string `json:"mode"`
}

// CardFound reports a resolved query, or one printing in all-prints mode.
type CardFound struct {
	Index      int              `json:"index"`
	Query      card.Query       `json:"query"`
	Card       card.Record      `json:"card"`
	ImageURLs  []string         `json:"imageUrls"`
	TokenParts []card.TokenPart `json:"tokenParts"`
}

// CardError reports a query that could not be resolved.
type CardError struct {
	Index int        `json:"index"`
	Query card.Query `json:"query"`
	Error string     `json:"error"`
}

// Progress follows every item.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Done ends a stream that ran to completion.
type Done struct {
	Processed int `json:"processed"`
	Found     int `json:"found"`
	Failed    int `json:"failed"`
}

// FatalError ends a stream that failed unexpectedly.
type FatalError struct {
	Message string `json:"message"`
}

// Heartbeat keeps idle connections open.
type Heartbeat struct {
	Time time.Time `json:"ts"`
}
