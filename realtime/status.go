package realtime

// Status is the connection state of a push channel.
type Status int

const (
	Uninstantiated Status = iota
	Connecting
	Open
	Closing
	Closed
)

func (s Status) String() string {
	switch s {
	case Uninstantiated:
		return "Uninstantiated"
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	}
	return "Unknown"
}

// MarshalText renders the status as its display name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
