package eventstream

import (
	"bufio"
	"bytes"
	"context"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

const maxEventSourceLine = 1 << 20

type (
	// EventSourceDialer creates server-sent event host connections. They never reconnect.
	EventSourceDialer struct {
		logger logger
		client *http.Client
	}

	// sseHost is a receive-only HostConn over a text/event-stream response.
	sseHost struct {
		logger  logger
		client  *http.Client
		url     string
		header  http.Header
		emitter *EventEmitter[EventKind, Event]

		ctx    context.Context
		cancel context.CancelFunc

		state atomic.Int32

		connectOnce sync.Once
		finishOnce  sync.Once
	}
)

func NewEventSourceDialer(logger logger, client *http.Client) *EventSourceDialer {
	if client == nil {
		client = http.DefaultClient
	}
	return &EventSourceDialer{
		logger: logger.WithField("net", "sse_host"),
		client: client,
	}
}

func (d *EventSourceDialer) Dial(rawURL string, opts Options) (HostConn, error) {
	u, err := parseTarget(rawURL, "http", "https")
	if err != nil {
		return nil, err
	}

	client := d.client
	if !opts.WithCredentials && client.Jar != nil {
		anonymous := *client
		anonymous.Jar = nil
		client = &anonymous
	}

	header := opts.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Accept", "text/event-stream")
	header.Set("Cache-Control", "no-cache")

	ctx, cancel := context.WithCancel(context.Background())
	h := &sseHost{
		logger:  d.logger.WithField("url", u.String()),
		client:  client,
		url:     u.String(),
		header:  header,
		emitter: NewEventEmitter[EventKind, Event](),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.state.Store(int32(StateConnecting))
	return h, nil
}

func (h *sseHost) AddEventListener(kind EventKind, fn Listener) {
	h.emitter.On(kind, fn)
}

func (h *sseHost) Connect() {
	h.connectOnce.Do(func() {
		go h.start()
	})
}

func (h *sseHost) ReadyState() ReadyState {
	return ReadyState(h.state.Load())
}

func (h *sseHost) Send(string) error {
	return errors.Wrap(ErrNotSupported, "event source connections are receive-only")
}

func (h *sseHost) BufferedAmount() int {
	return 0
}

// CloseWithStatus closes the stream. Event streams carry no close status, so code and reason
// are ignored.
func (h *sseHost) CloseWithStatus(int, string) error {
	return h.Close()
}

func (h *sseHost) Close() error {
	for {
		state := h.ReadyState()
		if state == StateClosing || state == StateClosed {
			return nil
		}
		if h.state.CompareAndSwap(int32(state), int32(StateClosing)) {
			break
		}
	}
	h.cancel()
	h.connectOnce.Do(func() {
		h.finish(CloseInfo{Code: closeNoStatus, WasClean: true})
	})
	return nil
}

const (
	closeNormal   = 1000
	closeNoStatus = 1005
	closeAbnormal = 1006
)

func (h *sseHost) start() {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, h.url, nil)
	if err != nil {
		h.fail(err)
		return
	}
	req.Header = h.header

	resp, err := h.client.Do(req)
	if err != nil {
		h.fail(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.fail(errors.Errorf("unexpected status %s", resp.Status))
		return
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "text/event-stream" {
		h.fail(errors.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")))
		return
	}

	if !h.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		h.finish(CloseInfo{Code: closeNoStatus, WasClean: true})
		return
	}
	h.logger.Debugf("success opening stream %s", h.url)
	h.emitter.Emit(EventOpen, Event{Kind: EventOpen})

	err = h.read(bufio.NewScanner(resp.Body))
	switch {
	case h.ctx.Err() != nil:
		h.finish(CloseInfo{Code: closeNoStatus, WasClean: true})
	case err != nil:
		h.logger.Errorf("error occurred on stream read: %s", err)
		h.finish(CloseInfo{Code: closeAbnormal, Reason: err.Error()})
	default:
		h.finish(CloseInfo{Code: closeNormal, WasClean: true})
	}
}

// read dispatches the events of a text/event-stream body until it ends.
func (h *sseHost) read(scanner *bufio.Scanner) error {
	scanner.Buffer(make([]byte, 0, 4096), maxEventSourceLine)
	scanner.Split(new(lineSplitter).split)

	var (
		eventType string
		data      strings.Builder
		first     = true
	)

	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}

		if line == "" {
			if data.Len() > 0 {
				kind := EventMessage
				if eventType != "" {
					kind = EventKind(eventType)
				}
				payload := strings.TrimSuffix(data.String(), "\n")
				if isLifecycleEvent(kind) {
					h.logger.Warnf("ignoring server event named %q", kind)
				} else {
					h.logger.Debugf("<= [%s] %d bytes", kind, len(payload))
					h.emitter.Emit(kind, Event{Kind: kind, Data: payload})
				}
			}
			eventType = ""
			data.Reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventType = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
		}
	}

	return scanner.Err()
}

// lineSplitter splits an event stream into lines ended by CRLF, LF or a bare CR.
// A CR ending one buffer with its LF at the start of the next still counts as one line end.
type lineSplitter struct {
	skipLF bool
}

func (s *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if s.skipLF && len(data) > 0 {
		s.skipLF = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}

	i := bytes.IndexAny(data, "\r\n")
	switch {
	case i < 0:
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	case data[i] == '\n':
		return i + 1, data[:i], nil
	case i+1 < len(data):
		if data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	default:
		s.skipLF = true
		return i + 1, data[:i], nil
	}
}

// isLifecycleEvent reports kinds only the host itself may dispatch.
func isLifecycleEvent(kind EventKind) bool {
	return kind == EventOpen || kind == EventClose || kind == EventError
}

func (h *sseHost) fail(err error) {
	if h.ctx.Err() != nil {
		h.finish(CloseInfo{Code: closeNoStatus, WasClean: true})
		return
	}
	h.logger.Errorf("connection err to %s: %s", h.url, err)
	h.emitter.Emit(EventError, Event{Kind: EventError, Data: err.Error()})
	h.finish(CloseInfo{Code: closeAbnormal, Reason: err.Error()})
}

func (h *sseHost) finish(info CloseInfo) {
	h.finishOnce.Do(func() {
		h.state.Store(int32(StateClosed))
		h.cancel()
		h.emitter.Emit(EventClose, Event{Kind: EventClose, Close: info})
		h.emitter.Close()
	})
}
