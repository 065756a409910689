//go:build js && wasm

package eventstream

import (
	"sync"
	"syscall/js"

	"github.com/pkg/errors"
)

type BrowserConstructor string

const (
	BrowserWebSocket   BrowserConstructor = "WebSocket"
	BrowserEventSource BrowserConstructor = "EventSource"
)

// BrowserDialer wraps the user agent's native WebSocket or EventSource objects.
type BrowserDialer struct {
	Constructor BrowserConstructor
}

// browserConn is a HostConn over a native browser connection object. The browser dispatches its
// events on the single JS event loop.
type browserConn struct {
	constructor BrowserConstructor
	value       js.Value
	emitter     *EventEmitter[EventKind, Event]

	mu        sync.Mutex
	listeners []jsListener
}

type jsListener struct {
	kind string
	fn   js.Func
}

func (d BrowserDialer) Dial(rawURL string, opts Options) (host HostConn, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jsError(r)
		}
	}()

	ctor := js.Global().Get(string(d.Constructor))
	if ctor.Type() != js.TypeFunction {
		return nil, errors.Wrapf(ErrNotSupported, "%s is not available", d.Constructor)
	}

	var value js.Value
	switch d.Constructor {
	case BrowserEventSource:
		value = ctor.New(rawURL, map[string]any{"withCredentials": opts.WithCredentials})
	default:
		protocols := make([]any, 0, len(opts.Protocols))
		for _, p := range opts.Protocols {
			protocols = append(protocols, p)
		}
		value = ctor.New(rawURL, protocols)
	}

	return &browserConn{
		constructor: d.Constructor,
		value:       value,
		emitter:     NewEventEmitter[EventKind, Event](),
	}, nil
}

// jsError maps a thrown DOMException to the host error categories by its name.
func jsError(r any) error {
	jsErr, ok := r.(js.Error)
	if !ok {
		return errors.Wrapf(ErrHostPanic, "%v", r)
	}

	msg := jsErr.Get("message").String()
	switch jsErr.Get("name").String() {
	case "SecurityError":
		return errors.Wrap(ErrSecurity, msg)
	case "SyntaxError":
		return errors.Wrap(ErrSyntax, msg)
	case "InvalidStateError":
		return errors.Wrap(ErrInvalidState, msg)
	case "InvalidAccessError":
		return errors.Wrap(ErrInvalidAccess, msg)
	default:
		return errors.New(jsErr.Error())
	}
}

func (c *browserConn) AddEventListener(kind EventKind, fn Listener) {
	c.emitter.On(kind, fn)
}

// Connect bridges the native events to the emitter. The browser has already started connecting;
// its events are only delivered on a later turn of the event loop, so none are missed.
func (c *browserConn) Connect() {
	c.bridge(EventOpen, func(js.Value) Event { return Event{Kind: EventOpen} })
	c.bridge(EventMessage, messageEvent(EventMessage))
	c.bridge(EventDebug, messageEvent(EventDebug))
	c.bridge(EventClose, func(ev js.Value) Event {
		return Event{Kind: EventClose, Close: CloseInfo{
			Code:     ev.Get("code").Int(),
			Reason:   ev.Get("reason").String(),
			WasClean: ev.Get("wasClean").Bool(),
		}}
	})

	// EventSource never fires close; an error leaving it CLOSED is its terminal event.
	if c.constructor == BrowserEventSource {
		c.bridge(EventError, func(js.Value) Event {
			if c.ReadyState() == StateClosed {
				c.emitter.Emit(EventClose, Event{Kind: EventClose, Close: CloseInfo{Code: closeAbnormal}})
				c.release()
			}
			return Event{Kind: EventError}
		})
	}
}

func messageEvent(kind EventKind) func(js.Value) Event {
	return func(ev js.Value) Event {
		return Event{Kind: kind, Data: ev.Get("data").String()}
	}
}

func (c *browserConn) bridge(kind EventKind, convert func(js.Value) Event) {
	fn := js.FuncOf(func(this js.Value, args []js.Value) any {
		var ev js.Value
		if len(args) > 0 {
			ev = args[0]
		}
		event := convert(ev)
		c.emitter.Emit(event.Kind, event)
		if event.Kind == EventClose {
			c.release()
		}
		return nil
	})

	c.mu.Lock()
	c.listeners = append(c.listeners, jsListener{kind: string(kind), fn: fn})
	c.mu.Unlock()

	c.value.Call("addEventListener", string(kind), fn)
}

func (c *browserConn) release() {
	c.mu.Lock()
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for _, l := range listeners {
		c.value.Call("removeEventListener", l.kind, l.fn)
		l.fn.Release()
	}
	c.emitter.Close()
}

func (c *browserConn) ReadyState() ReadyState {
	state := c.value.Get("readyState").Int()
	// EventSource uses 2 for CLOSED, it has no CLOSING state.
	if c.constructor == BrowserEventSource && state == 2 {
		return StateClosed
	}
	return ReadyState(state)
}

func (c *browserConn) Send(data string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jsError(r)
		}
	}()

	if c.value.Get("send").Type() != js.TypeFunction {
		return errors.Wrapf(ErrNotSupported, "%s cannot send", c.constructor)
	}
	c.value.Call("send", data)
	return nil
}

func (c *browserConn) CloseWithStatus(code int, reason string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jsError(r)
		}
	}()

	if c.constructor == BrowserEventSource {
		c.closeEventSource()
		return nil
	}
	c.value.Call("close", code, reason)
	return nil
}

// closeEventSource closes a native EventSource, which dispatches nothing when closed locally.
func (c *browserConn) closeEventSource() {
	if c.ReadyState() == StateClosed {
		return
	}
	c.value.Call("close")
	c.emitter.Emit(EventClose, Event{Kind: EventClose, Close: CloseInfo{Code: closeNoStatus, WasClean: true}})
	c.release()
}

// Close calls the native close if the object has one.
func (c *browserConn) Close() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jsError(r)
		}
	}()

	if c.constructor == BrowserEventSource {
		c.closeEventSource()
		return nil
	}
	if c.value.Get("close").Type() == js.TypeFunction {
		c.value.Call("close")
	}
	return nil
}

func (c *browserConn) BufferedAmount() int {
	amount := c.value.Get("bufferedAmount")
	if amount.Type() != js.TypeNumber {
		return 0
	}
	return amount.Int()
}
