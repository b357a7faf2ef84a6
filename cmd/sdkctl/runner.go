package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/framelink/internal/protocol"
	"github.com/danmuck/framelink/internal/protocol/session"
	"github.com/danmuck/framelink/internal/sdk"
	"github.com/danmuck/framelink/internal/transport"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const sandboxFetchTimeout = 10 * time.Second

// runner owns one client for the duration of a command.
type runner struct {
	client  *sdk.Client
	cancel  context.CancelFunc
	results chan protocol.Message

	once    sync.Once
	settled chan struct{}
	failure string
}

func newChannel(cfg clientConfig, logger zerolog.Logger) transport.Channel {
	switch cfg.Transport {
	case transportSandbox:
		httpClient := resty.New().SetTimeout(sandboxFetchTimeout)
		return transport.NewSandbox(cfg.Session.HostOrigin,
			transport.WithHTTPClient(httpClient),
			transport.WithSandboxLogger(logger),
		)
	default:
		return transport.NewWebSocket(cfg.Session.HostOrigin, transport.WithWebSocketLogger(logger))
	}
}

func startClient(ctx context.Context, cfg clientConfig, logger zerolog.Logger) (*runner, error) {
	r := &runner{
		results: make(chan protocol.Message, 16),
		settled: make(chan struct{}),
	}
	client, err := sdk.New(cfg.Session, newChannel(cfg, logger),
		sdk.WithLogger(logger),
		sdk.WithStatus(r.status(logger)),
		sdk.WithResult(r.result),
	)
	if err != nil {
		return nil, err
	}
	r.client = client

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go func() {
		_ = client.Run(runCtx, cfg.Token)
	}()
	return r, nil
}

func (r *runner) status(logger zerolog.Logger) session.StatusFunc {
	return func(label, detail string) {
		logger.Info().Str("status", label).Str("detail", detail).Msg("sdkctl status")
		switch label {
		case session.StateAuthenticated.Label():
			r.once.Do(func() { close(r.settled) })
		case session.StateAuthenticationFailed.Label(), session.StateInitializationFailed.Label():
			r.once.Do(func() {
				r.failure = label + ": " + detail
				close(r.settled)
			})
		}
	}
}

func (r *runner) result(m protocol.Message) {
	select {
	case r.results <- m:
	default:
	}
}

// awaitHandshake blocks until the first handshake outcome.
func (r *runner) awaitHandshake(ctx context.Context) error {
	select {
	case <-r.settled:
		if r.failure != "" {
			return fmt.Errorf("handshake failed: %s", r.failure)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("handshake: %w", ctx.Err())
	}
}

// awaitResult returns the api_result answering action. With a request id
// the match is exact; without one the first result for action is taken.
func (r *runner) awaitResult(ctx context.Context, action, requestID string) (protocol.Message, error) {
	for {
		select {
		case m := <-r.results:
			if requestID != "" && m.String(protocol.FieldRequestID) != requestID {
				continue
			}
			if m.String(protocol.FieldOriginalAction) != action {
				continue
			}
			return m, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s result: %w", action, ctx.Err())
		}
	}
}

func (r *runner) stop() {
	r.cancel()
	<-r.client.Done()
}
