package client

// State describes a channel's connection lifecycle. The zero value is
// Disconnected.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// combineStates folds the two channel states into the connection state the
// application sees. Connected requires both channels up; a single channel
// recovering degrades the whole connection to Reconnecting so the UI warns
// exactly when any traffic might be missing.
func combineStates(user, message State) State {
	if user == Connected && message == Connected {
		return Connected
	}
	if user == Reconnecting || message == Reconnecting {
		return Reconnecting
	}
	if user == Connecting || message == Connecting {
		return Connecting
	}
	return Disconnected
}
