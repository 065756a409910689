package eventstream

import (
	"time"
)

const (
	// DefaultDebounceWindow is the minimum time between two delivered message events.
	DefaultDebounceWindow = 250 * time.Millisecond

	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
)

// AdapterConfig tunes an Adapter. Start from DefaultAdapterConfig.
type AdapterConfig struct {
	// DebounceWindow drops message events arriving within this duration of the last delivered one.
	DebounceWindow time.Duration
	// Clock stamps event arrival. Defaults to time.Now.
	Clock func() time.Time
	// StrictOpen keeps an Open task pending forever when the host closes before opening, instead
	// of failing it with ErrClosedBeforeOpen.
	StrictOpen bool
}

func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		DebounceWindow: DefaultDebounceWindow,
		Clock:          time.Now,
	}
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	if c.DebounceWindow < 0 {
		c.DebounceWindow = 0
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// WebsocketConfig tunes the websocket host.
type WebsocketConfig struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every frame write.
	WriteTimeout time.Duration
	// CloseTimeout is how long a closing connection waits for the peer's close frame before the
	// socket is torn down.
	CloseTimeout time.Duration
}

func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		CloseTimeout:     DefaultCloseTimeout,
	}
}

func (c WebsocketConfig) withDefaults() WebsocketConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}
