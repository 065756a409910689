package eventstream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type (
	// MessageHandler is spawned for every delivered message event.
	MessageHandler func(ctx context.Context, conn *Conn, payload string) error

	// CloseHandler is spawned once when the connection closes.
	CloseHandler func(ctx context.Context, info CloseInfo) error

	// Settings holds the callbacks of an Open call. Either may be nil.
	Settings struct {
		OnMessage MessageHandler
		OnClose   CloseHandler
	}

	// Conn is the handle to a host connection handed out by Open.
	Conn struct {
		id   string
		host HostConn
	}
)

func newConn(host HostConn) *Conn {
	return &Conn{id: uuid.NewString(), host: host}
}

// ID identifies the connection in logs.
func (c *Conn) ID() string {
	return c.id
}

// Adapter turns host connection lifecycle events into spawned tasks and exposes the imperative
// connection operations as Tasks.
type Adapter struct {
	logger  logger
	dialer  Dialer
	spawner Spawner
	config  AdapterConfig
}

func NewAdapter(logger logger, dialer Dialer, spawner Spawner, config AdapterConfig) *Adapter {
	return &Adapter{
		logger:  logger.WithField("type", "adapter"),
		dialer:  dialer,
		spawner: spawner,
		config:  config.withDefaults(),
	}
}

// Open constructs a host connection and resolves once it signals open.
//
// Construction failures fail the task with *OpenError. Message and debug events are debounced and
// handed to settings.OnMessage; the close event is handed to settings.OnClose. Cancelling the task
// closes the host connection.
func (a *Adapter) Open(opts Options, rawURL string, settings Settings) *Task[*Conn] {
	return Bind[*Conn](func(complete CompleteFunc[*Conn]) func() {
		var host HostConn
		err := guardHost(func() (err error) {
			host, err = a.dialer.Dial(rawURL, opts)
			return
		})
		if err != nil {
			openErr := newOpenError(err)
			a.logger.Debugf("cannot open %s: %s", rawURL, openErr)
			complete(nil, openErr)
			return nil
		}

		conn := newConn(host)
		log := a.logger.WithField("conn", conn.ID())

		err = guardHost(func() error {
			a.listen(host, conn, rawURL, settings, complete)
			host.Connect()
			return nil
		})
		if err != nil {
			// the shim may already be connecting
			openErr := newOpenError(err)
			log.Errorf("host failed while connecting to %s: %s", rawURL, openErr)
			complete(nil, openErr)
			closeHost(host)
			return nil
		}

		return func() { closeHost(host) }
	})
}

func closeHost(host HostConn) {
	if closer, ok := host.(io.Closer); ok {
		_ = guardHost(closer.Close)
	}
}

// listen attaches the lifecycle listeners of one Open call to host.
func (a *Adapter) listen(host HostConn, conn *Conn, rawURL string, settings Settings, complete CompleteFunc[*Conn]) {
	log := a.logger.WithField("conn", conn.ID())
	gate := newDebouncer(a.config.DebounceWindow, a.config.Clock)

	var closed atomic.Bool

	host.AddEventListener(EventOpen, func(Event) {
		log.Debugf("opened %s", rawURL)
		complete(conn, nil)
	})

	onMessage := func(ev Event) {
		if closed.Load() {
			return
		}
		if !gate.allow() {
			log.Debugf("dropping %s event inside debounce window", ev.Kind)
			return
		}
		if settings.OnMessage == nil {
			return
		}
		payload := ev.Data
		a.spawner.Spawn(func(ctx context.Context) error {
			return settings.OnMessage(ctx, conn, payload)
		})
	}
	host.AddEventListener(EventDebug, onMessage)
	host.AddEventListener(EventMessage, onMessage)

	host.AddEventListener(EventClose, func(ev Event) {
		if !closed.CompareAndSwap(false, true) {
			return
		}
		info := ev.Close
		log.Debugf("closed with code=%d reason=%q clean=%t", info.Code, info.Reason, info.WasClean)

		if !a.config.StrictOpen {
			complete(nil, ErrClosedBeforeOpen)
		}
		if settings.OnClose == nil {
			return
		}
		a.spawner.Spawn(func(ctx context.Context) error {
			return settings.OnClose(ctx, info)
		})
	})
}

// Send attempts to send payload. The outcome is always a successful task carrying nil, or a
// *SendError describing why the payload did not go out.
func (a *Adapter) Send(conn *Conn, payload string) *Task[*SendError] {
	return Bind[*SendError](func(complete CompleteFunc[*SendError]) func() {
		var result *SendError
		if conn.host.ReadyState() != StateOpen {
			result = &SendError{Kind: SendNotOpen}
		}

		// The send is attempted even when not open; the readiness check only shapes the diagnosis.
		if err := guardHost(func() error { return conn.host.Send(payload) }); err != nil {
			result = &SendError{Kind: SendBadString, err: err}
		}

		complete(result, nil)
		return nil
	})
}

// Close asks the host to close the connection with the given status. A rejected call fails the task
// with *CloseError.
func (a *Adapter) Close(code int, reason string, conn *Conn) *Task[struct{}] {
	return Bind[struct{}](func(complete CompleteFunc[struct{}]) func() {
		if err := guardHost(func() error { return conn.host.CloseWithStatus(code, reason) }); err != nil {
			closeErr := newCloseError(err)
			a.logger.WithField("conn", conn.ID()).Debugf("close rejected: %s", closeErr)
			complete(struct{}{}, closeErr)
			return nil
		}
		complete(struct{}{}, nil)
		return nil
	})
}

// BytesQueued reports the host's count of bytes queued but not yet transmitted.
func (a *Adapter) BytesQueued(conn *Conn) *Task[int] {
	return Succeed(conn.host.BufferedAmount())
}

// debouncer lets an event through when it is the first one or when more than window has elapsed
// since the last one let through.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	clock  func() time.Time
	last   time.Time
	seen   bool
}

func newDebouncer(window time.Duration, clock func() time.Time) *debouncer {
	return &debouncer{window: window, clock: clock}
}

func (d *debouncer) allow() bool {
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen && now.Sub(d.last) <= d.window {
		return false
	}
	d.seen = true
	d.last = now
	return true
}
