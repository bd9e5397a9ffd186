package device

// ConnState is the connection lifecycle state owned by the supervisor.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateFaulted
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

// Event kinds published on the device event stream.
const (
	EventState    = "STATE"
	EventStatus   = "STATUS"
	EventMismatch = "READBACK_MISMATCH"
	EventSweep    = "CONNECT_SWEEP"
	EventCatalog  = "CATALOG"
)
