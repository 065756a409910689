package eventstream

import (
	"context"
)

type (
	// Client is a blocking facade over a single Adapter connection. This includes opening and
	// closing the connection, sending payloads and waiting for the close notification.
	Client interface {
		// Open establishes the connection and returns once it is open, failed or ctx is done
		Open(ctx context.Context) error
		// Send sends a payload, returning nil when it went out
		Send(payload string) *SendError
		// Close closes the connection with the given status
		Close(code int, reason string) error
		// BytesQueued reports bytes accepted by Send but not yet transmitted
		BytesQueued() int
		// CloseChan returns a channel that signals when the connection is closed
		CloseChan() CloseChan
		// CloseInfo returns the close snapshot once CloseChan is closed
		CloseInfo() CloseInfo
	}

	CloseChan chan struct{}
)
