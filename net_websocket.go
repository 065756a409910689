package eventstream

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/fasthttp/websocket"
)

type (
	// WebsocketDialer creates websocket host connections that behave like a user agent's WebSocket.
	WebsocketDialer struct {
		logger logger
		dialer *websocket.Dialer
		config WebsocketConfig
	}

	// wsHost is a HostConn over a websocket connection.
	// Open, message and close events are dispatched from the connection's reader goroutine.
	wsHost struct {
		logger  logger
		dialer  websocket.Dialer
		config  WebsocketConfig
		url     string
		header  http.Header
		emitter *EventEmitter[EventKind, Event]

		ctx    context.Context
		cancel context.CancelFunc

		state    atomic.Int32
		buffered atomic.Int64

		connMu     sync.Mutex
		conn       *websocket.Conn
		closeTimer *time.Timer

		queueMu sync.Mutex
		queue   []string
		wake    chan struct{}

		connectOnce sync.Once
		finishOnce  sync.Once
	}
)

func NewWebsocketDialer(logger logger, dialer *websocket.Dialer, config WebsocketConfig) *WebsocketDialer {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebsocketDialer{
		logger: logger.WithField("net", "ws_host"),
		dialer: dialer,
		config: config.withDefaults(),
	}
}

// Dial validates the target and returns a connection in CONNECTING state. No network activity
// happens until Connect.
func (d *WebsocketDialer) Dial(rawURL string, opts Options) (HostConn, error) {
	u, err := parseTarget(rawURL, "ws", "wss")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(opts.Protocols))
	for _, p := range opts.Protocols {
		if _, dup := seen[p]; dup || p == "" {
			return nil, errors.Wrapf(ErrSyntax, "invalid or duplicated subprotocol %q", p)
		}
		seen[p] = struct{}{}
	}

	dialer := *d.dialer
	dialer.HandshakeTimeout = d.config.HandshakeTimeout
	if len(opts.Protocols) > 0 {
		dialer.Subprotocols = append([]string(nil), opts.Protocols...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &wsHost{
		logger:  d.logger.WithField("url", u.String()),
		dialer:  dialer,
		config:  d.config,
		url:     u.String(),
		header:  opts.Header.Clone(),
		emitter: NewEventEmitter[EventKind, Event](),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
	}
	h.state.Store(int32(StateConnecting))
	return h, nil
}

func (h *wsHost) AddEventListener(kind EventKind, fn Listener) {
	h.emitter.On(kind, fn)
}

func (h *wsHost) Connect() {
	h.connectOnce.Do(func() {
		go h.start()
	})
}

func (h *wsHost) ReadyState() ReadyState {
	return ReadyState(h.state.Load())
}

func (h *wsHost) BufferedAmount() int {
	return int(h.buffered.Load())
}

// Send queues data for the writer goroutine. Like a user agent, it refuses while connecting and
// silently discards, while still counting, data sent after closing started.
func (h *wsHost) Send(data string) error {
	if !utf8.ValidString(data) {
		return errors.Wrap(ErrSyntax, "payload is not valid utf-8")
	}

	switch h.ReadyState() {
	case StateConnecting:
		return errors.Wrap(ErrInvalidState, "connection is still CONNECTING")
	case StateClosing, StateClosed:
		h.buffered.Add(int64(len(data)))
		return nil
	}

	h.buffered.Add(int64(len(data)))
	h.queueMu.Lock()
	h.queue = append(h.queue, data)
	h.queueMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

func (h *wsHost) CloseWithStatus(code int, reason string) error {
	if err := validateCloseStatus(code, reason); err != nil {
		return err
	}
	h.startClosing(websocket.FormatCloseMessage(code, reason))
	return nil
}

// Close starts the closing handshake without a status code. It is safe to call at any time.
func (h *wsHost) Close() error {
	h.startClosing([]byte{})
	return nil
}

func (h *wsHost) startClosing(payload []byte) {
	for {
		switch state := h.ReadyState(); state {
		case StateClosing, StateClosed:
			return
		case StateConnecting:
			if !h.state.CompareAndSwap(int32(state), int32(StateClosing)) {
				continue
			}
			h.cancel()
			// Before Connect nobody else will report the close. After Connect this Do is a no-op:
			// start sees the cancelled context, or loses the CONNECTING to OPEN swap, and finishes.
			h.connectOnce.Do(func() {
				h.finish(CloseInfo{Code: websocket.CloseAbnormalClosure})
			})
			return
		case StateOpen:
			if !h.state.CompareAndSwap(int32(state), int32(StateClosing)) {
				continue
			}
			h.sendClose(payload)
			return
		}
	}
}

func (h *wsHost) sendClose(payload []byte) {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	h.logger.Debugln("=> [CLOSE]")
	deadline := time.Now().Add(h.config.WriteTimeout)
	if err := h.conn.WriteControl(websocket.CloseMessage, payload, deadline); err != nil {
		h.logger.Errorf("cannot write close frame: %s", err)
		_ = h.conn.Close()
		return
	}

	conn := h.conn
	h.closeTimer = time.AfterFunc(h.config.CloseTimeout, func() {
		h.logger.Debugf("peer did not close within %s, dropping connection", h.config.CloseTimeout)
		_ = conn.Close()
	})
}

func (h *wsHost) start() {
	conn, resp, err := h.dialer.DialContext(h.ctx, h.url, h.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		h.logger.Errorf("connection err to %s: %s", h.url, err)
		h.emitter.Emit(EventError, Event{Kind: EventError, Data: err.Error()})
		h.finish(CloseInfo{Code: websocket.CloseAbnormalClosure})
		return
	}

	h.connMu.Lock()
	h.conn = conn
	h.connMu.Unlock()

	if !h.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		// closed while the handshake was in flight
		h.finish(CloseInfo{Code: websocket.CloseAbnormalClosure})
		return
	}

	h.logger.Debugf("success opening connection to %s", h.url)
	h.emitter.Emit(EventOpen, Event{Kind: EventOpen})

	go h.write()
	h.read()
}

func (h *wsHost) read() {
	for {
		messageType, bts, err := h.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				h.logger.Debugln("<= [CLOSE]")
				h.finish(CloseInfo{Code: closeErr.Code, Reason: closeErr.Text, WasClean: true})
				return
			}
			if h.ReadyState() == StateOpen {
				h.logger.Errorf("error occurred on websocket read: %s", err)
			}
			h.finish(CloseInfo{Code: websocket.CloseAbnormalClosure})
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			h.logger.Debugf("<= [DATA] %d bytes", len(bts))
			h.emitter.Emit(EventMessage, Event{Kind: EventMessage, Data: string(bts)})
		}
	}
}

func (h *wsHost) write() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.wake:
		}

		for {
			data, ok := h.dequeue()
			if !ok {
				break
			}

			_ = h.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			err := h.conn.WriteMessage(websocket.TextMessage, []byte(data))
			h.buffered.Add(-int64(len(data)))

			if err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					continue
				}
				h.logger.Errorf("error occurred on websocket write: %s", err)
				// the reader notices the broken socket and reports the close
				_ = h.conn.Close()
				return
			}
			h.logger.Debugf("=> [DATA] %d bytes", len(data))
		}
	}
}

func (h *wsHost) dequeue() (string, bool) {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()

	if len(h.queue) == 0 {
		return "", false
	}
	data := h.queue[0]
	h.queue = h.queue[1:]
	return data, true
}

// finish moves the connection to CLOSED and reports info exactly once.
func (h *wsHost) finish(info CloseInfo) {
	h.finishOnce.Do(func() {
		h.state.Store(int32(StateClosed))
		h.cancel()

		h.connMu.Lock()
		if h.closeTimer != nil {
			h.closeTimer.Stop()
		}
		if h.conn != nil {
			_ = h.conn.Close()
		}
		h.connMu.Unlock()

		h.emitter.Emit(EventClose, Event{Kind: EventClose, Close: info})
		h.emitter.Close()
	})
}
