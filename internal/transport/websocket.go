package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/framelink/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const wsCloseGrace = time.Second

type WebSocketOption func(*WebSocket)

func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(w *WebSocket) {
		if d != nil {
			w.dialer = d
		}
	}
}

func WithWebSocketLogger(logger zerolog.Logger) WebSocketOption {
	return func(w *WebSocket) {
		w.logger = logger
	}
}

// WebSocket reaches a remote launcher endpoint. The peer counts as loaded
// once the upgrade succeeds; the dial presents hostOrigin in the Origin
// header so the launcher can apply its own origin check.
type WebSocket struct {
	hostOrigin string
	dialer     *websocket.Dialer
	logger     zerolog.Logger

	mu         sync.Mutex
	writeMu    sync.Mutex
	created    bool
	loaded     bool
	closed     bool
	peerOrigin string
	conn       *websocket.Conn
	cancel     context.CancelFunc
	events     *mailbox[Event]
}

func NewWebSocket(hostOrigin string, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		hostOrigin: hostOrigin,
		dialer:     websocket.DefaultDialer,
		logger:     log.Logger.With().Str("component", "transport.websocket").Logger(),
		events:     newMailbox[Event](),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create starts dialing rawURL in the background. http and https URLs are
// dialed as ws and wss.
func (w *WebSocket) Create(ctx context.Context, rawURL string) error {
	dialURL, origin, err := websocketTarget(rawURL)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.created {
		w.mu.Unlock()
		return ErrPeerExists
	}
	w.created = true
	w.peerOrigin = origin
	dialCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	go w.dial(dialCtx, dialURL, origin)
	return nil
}

func (w *WebSocket) dial(ctx context.Context, dialURL, origin string) {
	header := http.Header{}
	if w.hostOrigin != "" {
		header.Set("Origin", w.hostOrigin)
	}
	conn, resp, err := w.dialer.DialContext(ctx, dialURL, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		w.logger.Warn().Err(err).Str("url", dialURL).Msg("transport.WebSocket dial failed")
		w.events.Put(Event{Kind: EventLoadFailed, Origin: origin, Err: err})
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return
	}
	w.conn = conn
	w.loaded = true
	w.mu.Unlock()

	w.logger.Info().Str("url", dialURL).Msg("transport.WebSocket connected")
	w.events.Put(Event{Kind: EventLoaded, Origin: origin})
	w.readLoop(conn, origin)
}

func (w *WebSocket) readLoop(conn *websocket.Conn, origin string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			closed := w.closed
			w.loaded = false
			w.mu.Unlock()
			if !closed {
				w.logger.Warn().Err(err).Msg("transport.WebSocket connection lost")
				w.events.Put(Event{Kind: EventClosed, Origin: origin, Err: err})
			}
			return
		}
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			// Undecodable frames still reach the dispatcher, which drops them.
			data = string(raw)
		}
		w.events.Put(Event{Kind: EventMessage, Origin: origin, Data: data})
	}
}

func (w *WebSocket) Send(msg protocol.Message, targetOrigin string) error {
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if err := checkSend(targetOrigin, w.peerOrigin, w.loaded, w.closed); err != nil {
		w.mu.Unlock()
		return err
	}
	conn := w.conn
	w.mu.Unlock()

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("transport: websocket write: %w", err)
	}
	return nil
}

func (w *WebSocket) Events() <-chan Event {
	return w.events.C()
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.loaded = false
	conn := w.conn
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.events.Close()
	if conn == nil {
		return nil
	}
	w.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseGrace),
	)
	w.writeMu.Unlock()
	return conn.Close()
}

// websocketTarget returns the URL to dial and the origin of the peer.
func websocketTarget(rawURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", protocol.ErrInvalidOrigin, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	origin, err := protocol.OriginOf(u.String())
	if err != nil {
		return "", "", err
	}
	return u.String(), origin, nil
}
