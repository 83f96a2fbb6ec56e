package dispatch

import (
	"github.com/shuttercam/shuttercam/internal/event"
)

// Outcome is the result of deciding on one notification.
type Outcome int

const (
	Dispatched Outcome = iota
	SuppressedUnknown
	SuppressedDisabled
	SuppressedDebounce
	SuppressedBusy
)

func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case SuppressedUnknown:
		return "unknown"
	case SuppressedDisabled:
		return "disabled"
	case SuppressedDebounce:
		return "debounce"
	case SuppressedBusy:
		return "busy"
	default:
		return "invalid"
	}
}

// CaptureRequest asks the camera for one photo.
type CaptureRequest struct {
	Label        string
	Notification event.Notification
}

// Decision is what the dispatcher concluded for a notification.
// Request is only meaningful when Outcome is Dispatched.
type Decision struct {
	Outcome Outcome
	Label   string
	Request CaptureRequest
}

// Dispatched reports whether a capture was requested.
func (d Decision) Dispatched() bool { return d.Outcome == Dispatched }
