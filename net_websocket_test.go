package eventstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peerClose is what the server side saw when the client closed.
type peerClose struct {
	code   cws.StatusCode
	reason string
}

func newWebsocketServer(t *testing.T, handler func(ctx context.Context, conn *cws.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := cws.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %s", err)
			return
		}
		defer conn.CloseNow()
		handler(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoOnce echoes the first client message prefixed with "echo:" and closes with 1000 "done".
func echoOnce(ctx context.Context, conn *cws.Conn) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, cws.MessageText, append([]byte("echo:"), data...)); err != nil {
		return
	}
	_ = conn.Close(cws.StatusNormalClosure, "done")
}

func newWebsocketAdapter(t *testing.T) *Adapter {
	t.Helper()
	scheduler := NewGroupScheduler(NoopLogger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = scheduler.Shutdown(ctx)
	})
	dialer := NewWebsocketDialer(NoopLogger, nil, DefaultWebsocketConfig())
	return NewAdapter(NoopLogger, dialer, scheduler, DefaultAdapterConfig())
}

type recorder struct {
	messages chan string
	closes   chan CloseInfo
}

func newRecorder() *recorder {
	return &recorder{messages: make(chan string, 16), closes: make(chan CloseInfo, 1)}
}

func (r *recorder) settings() Settings {
	return Settings{
		OnMessage: func(_ context.Context, _ *Conn, payload string) error {
			r.messages <- payload
			return nil
		},
		OnClose: func(_ context.Context, info CloseInfo) error {
			r.closes <- info
			return nil
		},
	}
}

func receive[T any](t *testing.T, c <-chan T) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWebsocketHostEchoAndPeerClose(t *testing.T) {
	url := newWebsocketServer(t, echoOnce)
	adapter := newWebsocketAdapter(t)
	rec := newRecorder()

	conn, err := adapter.Open(Options{}, url, rec.settings()).Await(testContext(t))
	require.NoError(t, err)

	result, err := adapter.Send(conn, "hi").Await(testContext(t))
	require.NoError(t, err)
	assert.Nil(t, result)

	assert.Equal(t, "echo:hi", receive(t, rec.messages))
	assert.Equal(t, CloseInfo{Code: 1000, Reason: "done", WasClean: true}, receive(t, rec.closes))

	result, err = adapter.Send(conn, "late").Await(testContext(t))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, SendNotOpen, result.Kind)

	queued, err := adapter.BytesQueued(conn).Await(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, len("late"), queued, "data sent after closing is counted but never written")
}

func TestWebsocketHostClientClose(t *testing.T) {
	seen := make(chan peerClose, 1)
	url := newWebsocketServer(t, func(ctx context.Context, conn *cws.Conn) {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				var closeErr cws.CloseError
				if errors.As(err, &closeErr) {
					seen <- peerClose{code: closeErr.Code, reason: closeErr.Reason}
				}
				return
			}
		}
	})
	adapter := newWebsocketAdapter(t)
	rec := newRecorder()

	conn, err := adapter.Open(Options{}, url, rec.settings()).Await(testContext(t))
	require.NoError(t, err)

	_, err = adapter.Close(4001, strings.Repeat("x", 200), conn).Await(testContext(t))
	var closeErr *CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, CloseBadReason, closeErr.Kind)

	_, err = adapter.Close(42, "bye", conn).Await(testContext(t))
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, CloseBadCode, closeErr.Kind)

	_, err = adapter.Close(4001, "bye", conn).Await(testContext(t))
	require.NoError(t, err)

	assert.Equal(t, peerClose{code: 4001, reason: "bye"}, receive(t, seen))
	info := receive(t, rec.closes)
	assert.True(t, info.WasClean)

	_, err = adapter.Close(4001, "again", conn).Await(testContext(t))
	assert.NoError(t, err, "closing a closed connection is a no-op")
}

func TestWebsocketHostHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	adapter := newWebsocketAdapter(t)
	rec := newRecorder()

	_, err := adapter.Open(Options{}, "ws"+strings.TrimPrefix(srv.URL, "http"), rec.settings()).Await(testContext(t))
	assert.ErrorIs(t, err, ErrClosedBeforeOpen)
	assert.Equal(t, CloseInfo{Code: 1006}, receive(t, rec.closes))
}

func TestWebsocketHostCancelWhileConnecting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	adapter := newWebsocketAdapter(t)
	rec := newRecorder()

	task := adapter.Open(Options{}, "ws"+strings.TrimPrefix(srv.URL, "http"), rec.settings())
	task.Cancel()

	_, err := task.Await(testContext(t))
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, CloseInfo{Code: 1006}, receive(t, rec.closes))
}

func TestWebsocketDialValidation(t *testing.T) {
	dialer := NewWebsocketDialer(NoopLogger, nil, DefaultWebsocketConfig())

	_, err := dialer.Dial("https://example.com", Options{})
	assert.ErrorIs(t, err, ErrSyntax)

	_, err = dialer.Dial("ws://example.com:25", Options{})
	assert.ErrorIs(t, err, ErrSecurity)

	_, err = dialer.Dial("ws://example.com", Options{Protocols: []string{"chat", "chat"}})
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestWebsocketHostBeforeConnect(t *testing.T) {
	dialer := NewWebsocketDialer(NoopLogger, nil, DefaultWebsocketConfig())
	host, err := dialer.Dial("ws://example.com/never", Options{})
	require.NoError(t, err)

	assert.Equal(t, StateConnecting, host.ReadyState())
	assert.ErrorIs(t, host.Send("early"), ErrInvalidState)
	assert.ErrorIs(t, host.Send("\xff"), ErrSyntax)

	var closed []CloseInfo
	host.AddEventListener(EventClose, func(ev Event) { closed = append(closed, ev.Close) })

	closer, ok := host.(interface{ Close() error })
	require.True(t, ok)
	require.NoError(t, closer.Close())
	require.NoError(t, closer.Close())

	assert.Equal(t, StateClosed, host.ReadyState())
	assert.Equal(t, []CloseInfo{{Code: 1006}}, closed)

	host.Connect()
	assert.Equal(t, StateClosed, host.ReadyState(), "connect after close does nothing")
}
