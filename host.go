package eventstream

import (
	"net/http"
)

type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type EventKind string

const (
	EventOpen    EventKind = "open"
	EventMessage EventKind = "message"
	EventDebug   EventKind = "debug"
	EventClose   EventKind = "close"
	EventError   EventKind = "error"
)

type (
	// CloseInfo is a snapshot of the close event, taken once when the connection closed.
	CloseInfo struct {
		Code     int
		Reason   string
		WasClean bool
	}

	// Event is what a host connection hands to its listeners.
	// Close is only meaningful for EventClose, Data for message-like kinds.
	Event struct {
		Kind  EventKind
		Data  string
		Close CloseInfo
	}

	Listener func(Event)

	// HostConn is the live connection object owned by the host environment. The adapter only
	// observes it and calls into it; all lifecycle state lives here.
	//
	// Implementations dispatch events for one connection serially. Hosts that can be torn down
	// without a close status also implement io.Closer, which must be idempotent.
	HostConn interface {
		// AddEventListener registers fn for events of the given kind.
		AddEventListener(kind EventKind, fn Listener)
		// Connect starts the opening handshake. Listeners are attached before it is called.
		Connect()
		ReadyState() ReadyState
		Send(data string) error
		CloseWithStatus(code int, reason string) error
		// BufferedAmount is the number of bytes queued for transmission but not yet sent.
		BufferedAmount() int
	}

	// Options carries host specific transport configuration.
	Options struct {
		Header          http.Header
		Protocols       []string
		WithCredentials bool
	}

	// Dialer constructs host connections. Construction errors are reported synchronously and
	// should wrap one of the host error categories (ErrSecurity, ErrSyntax, ...).
	Dialer interface {
		Dial(rawURL string, opts Options) (HostConn, error)
	}

	DialerFunc func(rawURL string, opts Options) (HostConn, error)
)

func (f DialerFunc) Dial(rawURL string, opts Options) (HostConn, error) {
	return f(rawURL, opts)
}
