package link

// State is the connection state of a Manager.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Degraded
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}
