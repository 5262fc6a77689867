package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"drover/internal/logging"
)

// Link is a single debugger connection to one webview target.
type Link struct {
	url    string
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan evalReply

	nextID atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func()
}

type evalReply struct {
	value json.RawMessage
	err   error
}

// Option customizes a Link at dial time.
type Option func(*Link)

// WithLogger attaches a logger to the link.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Link) {
		l.logger = logger
	}
}

// WithCloseHandler registers a callback invoked exactly once when the
// transport drops, whether remotely or via Close.
func WithCloseHandler(fn func()) Option {
	return func(l *Link) {
		l.onClose = fn
	}
}

// Dial connects to a target's debugger websocket endpoint.
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Link, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	link := &Link{
		url:     wsURL,
		conn:    conn,
		logger:  logging.NewNop(),
		pending: make(map[int64]chan evalReply),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(link)
	}

	go link.reader()
	return link, nil
}

// URL returns the websocket endpoint this link was dialed against.
func (l *Link) URL() string {
	return l.url
}

// Closed reports whether the transport has been torn down.
func (l *Link) Closed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

type evaluateRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params evaluateParams `json:"params"`
}

type evaluateParams struct {
	Expression    string `json:"expression"`
	AwaitPromise  bool   `json:"awaitPromise"`
	UserGesture   bool   `json:"userGesture"`
	ReturnByValue bool   `json:"returnByValue"`
}

type responseEnvelope struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Result struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	} `json:"result"`
}

// Evaluate runs expression in the target and returns its JSON value. The
// expression is awaited as a promise and returned by value. A deadline on
// ctx bounds the wait; expiry yields ErrEvalTimeout and leaves the link
// open, since the response may simply be slow.
func (l *Link) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	select {
	case <-l.closed:
		return nil, ErrClosed
	default:
	}

	id := l.nextID.Add(1)
	reply := make(chan evalReply, 1)

	l.pendingMu.Lock()
	l.pending[id] = reply
	l.pendingMu.Unlock()

	req := evaluateRequest{
		ID:     id,
		Method: "Runtime.evaluate",
		Params: evaluateParams{
			Expression:    expression,
			AwaitPromise:  true,
			UserGesture:   true,
			ReturnByValue: true,
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		l.forget(id)
		return nil, fmt.Errorf("marshal evaluate request: %w", err)
	}

	l.writeMu.Lock()
	err = l.conn.WriteMessage(websocket.TextMessage, data)
	l.writeMu.Unlock()
	if err != nil {
		l.forget(id)
		return nil, fmt.Errorf("write evaluate request: %w", err)
	}

	select {
	case res := <-reply:
		if res.err != nil {
			return nil, res.err
		}
		return res.value, nil
	case <-ctx.Done():
		l.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrEvalTimeout
		}
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *Link) reader() {
	defer l.teardown()

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
			default:
				l.logger.Debug("link read error",
					logging.String("url", l.url),
					logging.Error(err))
			}
			return
		}

		var envelope responseEnvelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			l.logger.Debug("unparseable protocol frame", logging.Error(err))
			continue
		}
		if envelope.ID == 0 {
			// Unsolicited event, not a response.
			continue
		}

		l.pendingMu.Lock()
		reply, ok := l.pending[envelope.ID]
		if ok {
			delete(l.pending, envelope.ID)
		}
		l.pendingMu.Unlock()
		if !ok {
			// Late response for an abandoned call.
			continue
		}

		if details := envelope.Result.ExceptionDetails; details != nil {
			text := details.Text
			if details.Exception != nil && details.Exception.Description != "" {
				text = details.Exception.Description
			}
			reply <- evalReply{err: &ExceptionError{Text: text}}
			continue
		}
		reply <- evalReply{value: envelope.Result.Result.Value}
	}
}

func (l *Link) forget(id int64) {
	l.pendingMu.Lock()
	delete(l.pending, id)
	l.pendingMu.Unlock()
}

// Close tears down the transport. Safe to call more than once.
func (l *Link) Close() error {
	l.teardown()
	return nil
}

func (l *Link) teardown() {
	l.closeOnce.Do(func() {
		close(l.closed)
		_ = l.conn.Close()

		l.pendingMu.Lock()
		pending := l.pending
		l.pending = make(map[int64]chan evalReply)
		l.pendingMu.Unlock()
		for _, reply := range pending {
			reply <- evalReply{err: ErrClosed}
		}

		if l.onClose != nil {
			l.onClose()
		}
	})
}
