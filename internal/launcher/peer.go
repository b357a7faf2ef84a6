package launcher

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/framelink/internal/auth"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	notAuthenticated = "not authenticated"
	rateLimited      = "rate limit exceeded"
)

// peerConn serves one SDK connection. It reads and writes on a single
// goroutine, so calls are answered in the order they arrive.
type peerConn struct {
	launcher      *Launcher
	conn          *websocket.Conn
	origin        string
	authenticated bool
	limiter       *rate.Limiter
	logger        zerolog.Logger
}

func (l *Launcher) newPeerConn(conn *websocket.Conn, origin string) *peerConn {
	p := &peerConn{
		launcher: l,
		conn:     conn,
		origin:   origin,
		logger:   l.logger.With().Str("origin", origin).Logger(),
	}
	if l.callRate > 0 {
		p.limiter = rate.NewLimiter(l.callRate, l.callBurst)
	}
	return p
}

func (p *peerConn) serve(ctx context.Context) {
	defer p.conn.Close()
	if limit := p.launcher.handshakeLimit; limit > 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(limit))
	}
	p.logger.Info().Msg("launcher peer connected")

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Warn().Err(err).Msg("launcher peer read failed")
			} else {
				p.logger.Info().Msg("launcher peer disconnected")
			}
			return
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			p.logger.Debug().Err(err).Msg("launcher malformed message ignored")
			continue
		}
		switch msg.Type() {
		case protocol.TypeAuthenticate:
			err = p.authenticate(msg)
		case protocol.TypeAPICall:
			err = p.call(ctx, msg)
		default:
			p.logger.Debug().Str("type", msg.Type()).Msg("launcher unknown message ignored")
		}
		if err != nil {
			p.logger.Warn().Err(err).Msg("launcher reply failed")
			return
		}
	}
}

// authenticate may run more than once; the latest token decides.
func (p *peerConn) authenticate(msg protocol.Message) error {
	err := p.launcher.validator.Validate(msg.String(protocol.FieldToken))
	if err != nil {
		p.authenticated = false
		observability.RecordLauncherAuth(p.launcher.Name, "failure")
		p.logger.Warn().Err(err).Msg("launcher authentication failed")
		return p.write(protocol.AuthFailureMessage(auth.Reason(err)))
	}
	p.authenticated = true
	_ = p.conn.SetReadDeadline(time.Time{})
	observability.RecordLauncherAuth(p.launcher.Name, "success")
	p.logger.Info().Msg("launcher peer authenticated")
	return p.write(protocol.AuthSuccessMessage())
}

func (p *peerConn) call(ctx context.Context, msg protocol.Message) error {
	action := msg.String(protocol.FieldAction)
	requestID := msg.String(protocol.FieldRequestID)
	if !p.authenticated {
		return p.write(protocol.APIResultMessage(action, requestID, map[string]any{
			protocol.FieldStatus: protocol.ResultStatusError,
			protocol.FieldError:  notAuthenticated,
		}))
	}

	if p.limiter != nil && !p.limiter.Allow() {
		p.logger.Warn().Str("action", action).Msg("launcher api_call rate limited")
		observability.RecordLauncherAction(p.launcher.Name, action, 0, false)
		return p.write(protocol.APIResultMessage(action, requestID, map[string]any{
			protocol.FieldStatus: protocol.ResultStatusError,
			protocol.FieldError:  rateLimited,
		}))
	}

	payload, _ := msg[protocol.FieldPayload].(map[string]any)
	out, err := p.launcher.ExecuteAction(ctx, Request{
		Action:    action,
		Payload:   payload,
		RequestID: requestID,
		Origin:    p.origin,
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, ErrActionNotFound) {
			reason = "unknown action: " + action
		}
		return p.write(protocol.APIResultMessage(action, requestID, map[string]any{
			protocol.FieldStatus: protocol.ResultStatusError,
			protocol.FieldError:  reason,
		}))
	}
	return p.write(protocol.APIResultMessage(action, requestID, map[string]any{
		protocol.FieldStatus: protocol.ResultStatusOK,
		protocol.FieldResult: out,
	}))
}

func (p *peerConn) write(msg protocol.Message) error {
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, raw)
}
