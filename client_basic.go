package eventstream

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var ErrNotConnected = errors.New("client is not connected")

// basicClient drives one connection through an Adapter. It wraps the user's close handler to record
// the close snapshot, so CloseChan works even without an OnClose callback.
type basicClient struct {
	adapter  *Adapter
	url      string
	options  Options
	settings Settings

	mu   sync.RWMutex
	conn *Conn
	open *Task[*Conn]

	closeC    CloseChan
	closeOnce sync.Once
	closeInfo CloseInfo
}

func (b *basicClient) Open(ctx context.Context) error {
	b.mu.Lock()
	if b.open != nil {
		b.mu.Unlock()
		return errors.New("client already opened")
	}
	b.open = b.adapter.Open(b.options, b.url, Settings{
		OnMessage: b.settings.OnMessage,
		OnClose:   b.onClose,
	})
	task := b.open
	b.mu.Unlock()

	conn, err := task.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			task.Cancel()
		}
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	return nil
}

func (b *basicClient) onClose(ctx context.Context, info CloseInfo) error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closeInfo = info
		b.mu.Unlock()
		close(b.closeC)
	})
	if b.settings.OnClose != nil {
		return b.settings.OnClose(ctx, info)
	}
	return nil
}

func (b *basicClient) connection() *Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn
}

func (b *basicClient) Send(payload string) *SendError {
	conn := b.connection()
	if conn == nil {
		return &SendError{Kind: SendNotOpen, err: ErrNotConnected}
	}
	result, _ := b.adapter.Send(conn, payload).Await(context.Background())
	return result
}

func (b *basicClient) Close(code int, reason string) error {
	conn := b.connection()
	if conn == nil {
		b.mu.RLock()
		task := b.open
		b.mu.RUnlock()
		if task != nil {
			task.Cancel()
		}
		return nil
	}
	_, err := b.adapter.Close(code, reason, conn).Await(context.Background())
	return err
}

func (b *basicClient) BytesQueued() int {
	conn := b.connection()
	if conn == nil {
		return 0
	}
	n, _ := b.adapter.BytesQueued(conn).Await(context.Background())
	return n
}

func (b *basicClient) CloseChan() CloseChan {
	return b.closeC
}

func (b *basicClient) CloseInfo() CloseInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closeInfo
}

func NewClient(adapter *Adapter, url string, options Options, settings Settings) Client {
	return &basicClient{
		adapter:  adapter,
		url:      url,
		options:  options,
		settings: settings,
		closeC:   make(CloseChan),
	}
}
