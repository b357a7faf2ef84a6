package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/internal/protocol"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidTransition = errors.New("session: invalid transition")
	ErrPeerAlreadyLoaded = errors.New("session: peer already loaded")
)

// StatusFunc receives the state label and a detail string on every reported
// transition.
type StatusFunc func(label, detail string)

// Handshake is the only writer of a Session.
type Handshake struct {
	sess   *Session
	status StatusFunc
	logger zerolog.Logger
}

func NewHandshake(sess *Session, status StatusFunc, logger zerolog.Logger) *Handshake {
	if sess == nil {
		sess = NewSession()
	}
	if status == nil {
		status = func(string, string) {}
	}
	return &Handshake{
		sess:   sess,
		status: status,
		logger: logger,
	}
}

func (h *Handshake) Session() *Session {
	return h.sess
}

func (h *Handshake) State() State {
	return h.sess.State
}

// Begin consumes the bootstrap token. It reports whether the caller should
// go on to create the peer; an empty token ends the session for good.
func (h *Handshake) Begin(token string) (bool, error) {
	if err := h.move(StateAwaitingToken); err != nil {
		return false, err
	}
	if strings.TrimSpace(token) == "" {
		h.logger.Warn().Msg("session.Handshake auth token missing; enhanced APIs disabled")
		return false, h.transition(StateInitializationFailed, DetailTokenMissing)
	}
	h.sess.AuthToken = token
	if err := h.transition(StateCreatingPeer, DetailCreatingPeer); err != nil {
		return false, err
	}
	return true, nil
}

// PeerFailed records a peer creation or load failure. It is terminal and
// only valid while the peer has not loaded.
func (h *Handshake) PeerFailed(detail string) error {
	if h.sess.PeerReady {
		return fmt.Errorf("%w: peer already loaded", ErrInvalidTransition)
	}
	if detail == "" {
		detail = DetailPeerLoadFailed
	}
	if err := h.transition(StateInitializationFailed, detail); err != nil {
		return err
	}
	h.sess.Authenticated = false
	h.sess.LastFailure = detail
	return nil
}

// PeerLoaded marks the peer ready and returns the authenticate message. The
// caller must deliver it before any queued message, then call TokenSent.
func (h *Handshake) PeerLoaded() (protocol.Message, error) {
	if h.sess.PeerReady {
		return nil, ErrPeerAlreadyLoaded
	}
	switch h.sess.State {
	case StateCreatingPeer, StateAuthenticated, StateAuthenticationFailed:
	default:
		return nil, fmt.Errorf("%w: peer loaded in state %s", ErrInvalidTransition, h.sess.State)
	}
	h.sess.PeerReady = true
	return protocol.Authenticate(h.sess.AuthToken), nil
}

// TokenSent moves to Authenticating once the token is on its way. A session
// the peer already authenticated stays Authenticated.
func (h *Handshake) TokenSent() error {
	if h.sess.State == StateAuthenticated {
		h.logger.Debug().Msg("session.Handshake token sent to an already authenticated peer")
		return nil
	}
	return h.transition(StateAuthenticating, DetailTokenSent)
}

func (h *Handshake) AuthSucceeded() error {
	if err := h.transition(StateAuthenticated, DetailReady); err != nil {
		return err
	}
	h.sess.Authenticated = true
	h.sess.LastFailure = ""
	return nil
}

// AuthFailed reverts authentication. It is not terminal: a later success
// moves the session back to Authenticated.
func (h *Handshake) AuthFailed(reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = DetailUnknownReason
	}
	if err := h.transition(StateAuthenticationFailed, reason); err != nil {
		return err
	}
	h.sess.Authenticated = false
	h.sess.LastFailure = reason
	return nil
}

// TimedOut applies the handshake deadline. A peer that never loaded fails
// initialization; a peer that loaded but never answered fails
// authentication. Other states are left alone.
func (h *Handshake) TimedOut() error {
	switch h.sess.State {
	case StateCreatingPeer:
		return h.PeerFailed(DetailPeerLoadTimeout)
	case StateAuthenticating:
		return h.AuthFailed(DetailHandshakeTimeout)
	default:
		return nil
	}
}

func (h *Handshake) transition(to State, detail string) error {
	from := h.sess.State
	if err := h.move(to); err != nil {
		return err
	}
	h.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("detail", detail).
		Msg("session.Handshake transition")
	h.status(to.Label(), detail)
	return nil
}

func (h *Handshake) move(to State) error {
	from := h.sess.State
	if !CanTransition(from, to) {
		h.logger.Warn().
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("session.Handshake refused transition")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	h.sess.State = to
	observability.RecordSDKTransition(to.String())
	return nil
}
