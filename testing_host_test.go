package eventstream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

// fakeHost is a HostConn whose behavior is set per test through func fields.
type fakeHost struct {
	emitter *EventEmitter[EventKind, Event]

	ConnectFunc         func()
	ReadyStateFunc      func() ReadyState
	SendFunc            func(data string) error
	CloseWithStatusFunc func(code int, reason string) error
	BufferedAmountFunc  func() int

	sends atomic.Int32
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		emitter:             NewEventEmitter[EventKind, Event](),
		ConnectFunc:         func() {},
		ReadyStateFunc:      func() ReadyState { return StateOpen },
		SendFunc:            func(string) error { return nil },
		CloseWithStatusFunc: func(int, string) error { return nil },
		BufferedAmountFunc:  func() int { return 0 },
	}
}

func (f *fakeHost) AddEventListener(kind EventKind, fn Listener) { f.emitter.On(kind, fn) }

func (f *fakeHost) Connect() { f.ConnectFunc() }

func (f *fakeHost) ReadyState() ReadyState { return f.ReadyStateFunc() }

func (f *fakeHost) Send(data string) error {
	f.sends.Add(1)
	return f.SendFunc(data)
}

func (f *fakeHost) CloseWithStatus(code int, reason string) error {
	return f.CloseWithStatusFunc(code, reason)
}

func (f *fakeHost) BufferedAmount() int { return f.BufferedAmountFunc() }

func (f *fakeHost) fire(kind EventKind, data string) {
	f.emitter.Emit(kind, Event{Kind: kind, Data: data})
}

func (f *fakeHost) fireClose(info CloseInfo) {
	f.emitter.Emit(EventClose, Event{Kind: EventClose, Close: info})
}

// closableFakeHost additionally implements io.Closer and fires a close event the first time.
type closableFakeHost struct {
	*fakeHost
	closes atomic.Int32
}

func newClosableFakeHost() *closableFakeHost {
	return &closableFakeHost{fakeHost: newFakeHost()}
}

func (c *closableFakeHost) Close() error {
	if c.closes.Add(1) == 1 {
		c.fireClose(CloseInfo{Code: 1005, WasClean: true})
	}
	return nil
}

func dialerFor(host HostConn) Dialer {
	return DialerFunc(func(string, Options) (HostConn, error) { return host, nil })
}

// syncSpawner runs spawned tasks inline and counts them.
type syncSpawner struct {
	spawned atomic.Int32
}

func (s *syncSpawner) Spawn(fn func(ctx context.Context) error) {
	s.spawned.Add(1)
	_ = fn(context.Background())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockHandlers struct {
	mock.Mock
}

func (m *mockHandlers) OnMessage(_ context.Context, conn *Conn, payload string) error {
	args := m.Called(conn, payload)
	return args.Error(0)
}

func (m *mockHandlers) OnClose(_ context.Context, info CloseInfo) error {
	args := m.Called(info)
	return args.Error(0)
}

func (m *mockHandlers) settings() Settings {
	return Settings{OnMessage: m.OnMessage, OnClose: m.OnClose}
}
