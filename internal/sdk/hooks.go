package sdk

import (
	"sync"

	"github.com/danmuck/framelink/internal/protocol"
	"github.com/danmuck/framelink/internal/protocol/session"
	"github.com/rs/zerolog"
)

// ResultFunc receives every trusted api_result exactly as the peer sent it.
type ResultFunc func(protocol.Message)

func noopStatus(string, string) {}

func noopResult(protocol.Message) {}

// guardStatus keeps a panicking host hook from taking down the client loop.
func guardStatus(fn session.StatusFunc, logger zerolog.Logger) session.StatusFunc {
	if fn == nil {
		return noopStatus
	}
	return func(label, detail string) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("label", label).Msg("sdk status hook panicked")
			}
		}()
		fn(label, detail)
	}
}

func guardResult(fn ResultFunc, logger zerolog.Logger) ResultFunc {
	if fn == nil {
		return noopResult
	}
	return func(m protocol.Message) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("action", m.String(protocol.FieldOriginalAction)).Msg("sdk result hook panicked")
			}
		}()
		fn(m)
	}
}

// hookRunner calls host hooks in order on its own goroutine, so a hook may
// call back into the Client while the loop keeps serving.
type hookRunner struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
}

func newHookRunner() *hookRunner {
	return &hookRunner{wake: make(chan struct{}, 1)}
}

// post never blocks. Hooks posted after close are dropped.
func (h *hookRunner) post(fn func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.pending = append(h.pending, fn)
	h.mu.Unlock()
	h.signal()
}

// close lets already posted hooks run, then stops the runner.
func (h *hookRunner) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.signal()
}

func (h *hookRunner) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *hookRunner) run() {
	for range h.wake {
		for {
			h.mu.Lock()
			if len(h.pending) == 0 {
				closed := h.closed
				h.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := h.pending[0]
			h.pending[0] = nil
			h.pending = h.pending[1:]
			h.mu.Unlock()
			fn()
		}
	}
}

func (h *hookRunner) status(fn session.StatusFunc) session.StatusFunc {
	return func(label, detail string) {
		h.post(func() { fn(label, detail) })
	}
}

func (h *hookRunner) result(fn ResultFunc) ResultFunc {
	return func(m protocol.Message) {
		h.post(func() { fn(m) })
	}
}
