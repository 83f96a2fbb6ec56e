package event

import "time"

// Activity kinds.
const (
	KindState      = "state"
	KindDispatched = "dispatched"
	KindSuppressed = "suppressed"
	KindCapture    = "capture"
	KindSignal     = "signal"
)

// Activity is a user-visible session event fanned out to sinks
// (web stream, MQTT).
type Activity struct {
	Time           time.Time `json:"time"`
	Session        string    `json:"session"`
	Profile        string    `json:"profile"`
	Kind           string    `json:"kind"`
	Label          string    `json:"label,omitempty"`
	Characteristic string    `json:"characteristic,omitempty"`
	Pattern        string    `json:"pattern,omitempty"`
	Outcome        string    `json:"outcome,omitempty"`
	Detail         string    `json:"detail,omitempty"`
}

// Sink receives activities. Implementations must not block.
type Sink interface {
	Publish(a Activity)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Activity)

func (f SinkFunc) Publish(a Activity) { f(a) }

// Sinks fans an activity out to several sinks.
type Sinks []Sink

func (s Sinks) Publish(a Activity) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(a)
		}
	}
}
