package sdk

import (
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/internal/protocol"
	"github.com/danmuck/framelink/internal/protocol/session"
	"github.com/danmuck/framelink/internal/transport"
	"github.com/rs/zerolog"
)

// Outcome is what Dispatch did with one event.
type Outcome int

const (
	OutcomeHandled Outcome = iota
	OutcomeUntrustedOrigin
	OutcomeMalformed
	OutcomeIgnored
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeUntrustedOrigin:
		return "untrusted_origin"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Dispatcher routes inbound peer messages. Origin is checked before the
// payload is looked at; nothing from another origin reaches the handshake
// or the result hook.
type Dispatcher struct {
	trustedOrigin string
	handshake     *session.Handshake
	result        ResultFunc
	logger        zerolog.Logger
}

func NewDispatcher(trustedOrigin string, hs *session.Handshake, result ResultFunc, logger zerolog.Logger) *Dispatcher {
	if result == nil {
		result = noopResult
	}
	return &Dispatcher{
		trustedOrigin: trustedOrigin,
		handshake:     hs,
		result:        result,
		logger:        logger,
	}
}

func (d *Dispatcher) Dispatch(ev transport.Event) Outcome {
	if ev.Kind != transport.EventMessage {
		return OutcomeIgnored
	}
	if !protocol.SameOrigin(ev.Origin, d.trustedOrigin) {
		d.logger.Warn().
			Str("origin", ev.Origin).
			Str("trusted", d.trustedOrigin).
			Msg("sdk.Dispatcher message from untrusted origin dropped")
		observability.RecordSDKDropped(OutcomeUntrustedOrigin.String())
		return OutcomeUntrustedOrigin
	}

	parsed, err := protocol.ParseEvent(ev.Data)
	if err != nil {
		d.logger.Debug().Err(err).Msg("sdk.Dispatcher malformed message dropped")
		observability.RecordSDKDropped(OutcomeMalformed.String())
		return OutcomeMalformed
	}

	switch e := parsed.(type) {
	case protocol.AuthSuccess:
		if err := d.handshake.AuthSucceeded(); err != nil {
			return OutcomeRejected
		}
		return OutcomeHandled
	case protocol.AuthFailure:
		if err := d.handshake.AuthFailed(e.Reason); err != nil {
			return OutcomeRejected
		}
		return OutcomeHandled
	case protocol.APIResult:
		d.logger.Debug().
			Str("action", e.OriginalAction).
			Str("request_id", e.RequestID).
			Msg("sdk.Dispatcher api_result")
		d.result(e.Message)
		return OutcomeHandled
	default:
		d.logger.Debug().Str("type", parsed.EventType()).Msg("sdk.Dispatcher unknown message type ignored")
		observability.RecordSDKDropped(OutcomeIgnored.String())
		return OutcomeIgnored
	}
}
