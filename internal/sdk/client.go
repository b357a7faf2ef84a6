package sdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/internal/protocol"
	"github.com/danmuck/framelink/internal/protocol/session"
	"github.com/danmuck/framelink/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrMissingAction    = errors.New("missing action")
	ErrInvalidPayload   = errors.New("sdk: payload is not serializable")
	ErrAlreadyRunning   = errors.New("sdk: client already running")
	ErrClientStopped    = errors.New("sdk: client stopped")
)

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithStatus installs the host status hook, called on every reported state
// transition.
func WithStatus(fn session.StatusFunc) Option {
	return func(c *Client) {
		c.status = fn
	}
}

// WithResult installs the host hook for api_result messages.
func WithResult(fn ResultFunc) Option {
	return func(c *Client) {
		c.result = fn
	}
}

// WithRequestIDs overrides the generator used when Config.RequestIDs is set.
func WithRequestIDs(next func() string) Option {
	return func(c *Client) {
		if next != nil {
			c.newID = next
		}
	}
}

type callRequest struct {
	action  string
	payload map[string]any
	reply   chan callReply
}

type callReply struct {
	requestID string
	err       error
}

// Client drives one peer for its whole lifetime.
type Client struct {
	cfg     session.Config
	channel transport.Channel
	logger  zerolog.Logger
	status  session.StatusFunc
	result  ResultFunc
	newID   func() string

	sess       *session.Session
	handshake  *session.Handshake
	queue      *session.Queue
	dispatcher *Dispatcher
	hooks      *hookRunner

	calls     chan callRequest
	snapshots chan chan session.Snapshot
	started   atomic.Bool
	done      chan struct{}
}

// New validates cfg and prepares a client on channel. Nothing happens on
// the channel until Run.
func New(cfg session.Config, channel transport.Channel, opts ...Option) (*Client, error) {
	if channel == nil {
		return nil, errors.New("sdk: channel required")
	}
	normalized, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:       normalized,
		channel:   channel,
		logger:    log.Logger.With().Str("component", "sdk").Logger(),
		newID:     uuid.NewString,
		calls:     make(chan callRequest),
		snapshots: make(chan chan session.Snapshot),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sess = session.NewSession()
	c.queue = session.NewQueue()
	c.hooks = newHookRunner()
	c.handshake = session.NewHandshake(c.sess, c.hooks.status(guardStatus(c.status, c.logger)), c.logger)
	c.dispatcher = NewDispatcher(c.cfg.TrustedOrigin, c.handshake, c.hooks.result(guardResult(c.result, c.logger)), c.logger)
	return c, nil
}

func (c *Client) Config() session.Config {
	return c.cfg
}

// Run bootstraps the session with token and serves it until ctx is done.
// It returns ctx.Err(). The channel is closed on return.
//
// Hooks run in order on a separate goroutine and may call CallAction or
// Snapshot. Hooks still pending when Run returns are delivered afterwards.
//
// A missing token or a peer that fails to load leaves the client running
// in a rejecting state: CallAction keeps returning ErrNotAuthenticated.
func (c *Client) Run(ctx context.Context, token string) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go c.hooks.run()
	defer c.hooks.close()
	defer close(c.done)
	defer func() {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("sdk.Client channel close")
		}
	}()

	proceed, err := c.handshake.Begin(token)
	if err != nil {
		c.logger.Error().Err(err).Msg("sdk.Client begin")
	}
	if proceed {
		if err := c.channel.Create(ctx, c.cfg.PeerURL); err != nil {
			c.logger.Error().Err(err).Str("url", c.cfg.PeerURL).Msg("sdk.Client create peer")
			_ = c.handshake.PeerFailed(session.DetailPeerLoadFailed)
		}
	}

	var deadline <-chan time.Time
	if proceed && c.cfg.HandshakeTimeout > 0 && !c.sess.State.Terminal() {
		timer := time.NewTimer(c.cfg.HandshakeTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	events := c.channel.Events()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Str("state", c.sess.State.String()).Msg("sdk.Client stopping")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		case req := <-c.calls:
			id, err := c.callAction(req.action, req.payload)
			req.reply <- callReply{requestID: id, err: err}
		case reply := <-c.snapshots:
			reply <- c.snapshot()
		case <-deadline:
			deadline = nil
			if err := c.handshake.TimedOut(); err != nil {
				c.logger.Warn().Err(err).Msg("sdk.Client handshake timeout")
			}
		}
		if deadline != nil && (c.sess.Authenticated || c.sess.State.Terminal()) {
			deadline = nil
		}
	}
}

func (c *Client) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventLoaded:
		c.peerLoaded()
	case transport.EventLoadFailed:
		c.logger.Error().Err(ev.Err).Msg("sdk.Client peer failed to load")
		_ = c.handshake.PeerFailed(session.DetailPeerLoadFailed)
	case transport.EventMessage:
		outcome := c.dispatcher.Dispatch(ev)
		c.logger.Trace().Str("outcome", outcome.String()).Msg("sdk.Client inbound")
	case transport.EventClosed:
		c.logger.Warn().Err(ev.Err).Msg("sdk.Client peer connection closed")
	}
}

// peerLoaded sends the token ahead of everything queued while loading.
func (c *Client) peerLoaded() {
	auth, err := c.handshake.PeerLoaded()
	if err != nil {
		c.logger.Warn().Err(err).Msg("sdk.Client unexpected peer load")
		return
	}
	c.queue.PushFront(auth)
	n := c.queue.Flush(c.deliver)
	c.logger.Debug().Int("count", n).Msg("sdk.Client flushed queue")
	if err := c.handshake.TokenSent(); err != nil {
		c.logger.Warn().Err(err).Msg("sdk.Client token sent")
	}
}

func (c *Client) callAction(action string, payload map[string]any) (string, error) {
	if !c.sess.Authenticated {
		c.logger.Warn().Str("action", action).Msg("sdk.Client call rejected: not authenticated")
		return "", ErrNotAuthenticated
	}
	if strings.TrimSpace(action) == "" {
		c.logger.Warn().Msg("sdk.Client call rejected: missing action")
		return "", ErrMissingAction
	}
	requestID := ""
	if c.cfg.RequestIDs {
		requestID = c.newID()
	}
	msg, err := protocol.Clone(protocol.APICall(action, payload, requestID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	c.send(msg)
	return requestID, nil
}

// send delivers now once the peer is ready and queues otherwise.
func (c *Client) send(msg protocol.Message) {
	if c.sess.PeerReady {
		c.deliver(msg)
		return
	}
	c.queue.Enqueue(msg)
	observability.RecordSDKQueued(msg.Type())
	c.logger.Debug().Str("type", msg.Type()).Int("queued", c.queue.Len()).Msg("sdk.Client queued message")
}

func (c *Client) deliver(msg protocol.Message) {
	if err := c.channel.Send(msg, c.cfg.TrustedOrigin); err != nil {
		c.logger.Warn().Err(err).Str("type", msg.Type()).Msg("sdk.Client send failed")
		observability.RecordSDKSendFailure(msg.Type())
		return
	}
	observability.RecordSDKSend(msg.Type())
}

func (c *Client) snapshot() session.Snapshot {
	snap := c.sess.Snapshot()
	snap.Queued = c.queue.Len()
	return snap
}

// CallAction asks the peer to run action with payload. It returns once the
// request is sent or queued; the answer arrives through the result hook.
// The returned request id is empty unless Config.RequestIDs is set.
func (c *Client) CallAction(ctx context.Context, action string, payload map[string]any) (string, error) {
	if !c.started.Load() {
		return "", ErrNotAuthenticated
	}
	req := callRequest{action: action, payload: payload, reply: make(chan callReply, 1)}
	select {
	case c.calls <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrClientStopped
	}
	select {
	case r := <-req.reply:
		return r.requestID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Snapshot returns a copy of the session. The token is never included.
func (c *Client) Snapshot(ctx context.Context) (session.Snapshot, error) {
	if !c.started.Load() {
		return session.Snapshot{State: session.StateUninitialized}, nil
	}
	reply := make(chan session.Snapshot, 1)
	select {
	case c.snapshots <- reply:
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	case <-c.done:
		return session.Snapshot{}, ErrClientStopped
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	}
}

// Done is closed when Run returns.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
