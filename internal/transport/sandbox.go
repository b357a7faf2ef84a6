package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/danmuck/framelink/internal/protocol"
	"github.com/dop251/goja"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultScriptTimeout = 10 * time.Second
	maxCallStackSize     = 1024
)

type SandboxOption func(*Sandbox)

func WithHTTPClient(c *resty.Client) SandboxOption {
	return func(s *Sandbox) {
		if c != nil {
			s.http = c
		}
	}
}

func WithSandboxLogger(logger zerolog.Logger) SandboxOption {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// Sandbox runs a peer handler script in its own JavaScript runtime. The
// script is fetched from the peer URL and executed on a dedicated goroutine;
// the only way in or out is message passing. An HTML handler page is
// reduced to its inline scripts, run in document order.
//
// The script sees:
//
//	self.onmessage = function (event) { event.data; event.origin }
//	addEventListener("message", fn)
//	parent.postMessage(data, targetOrigin)
//	location.origin, location.href
//	console.log / warn / error
//
// postMessage with a target that is neither the host origin nor "*" is
// dropped.
type Sandbox struct {
	hostOrigin string
	http       *resty.Client
	logger     zerolog.Logger

	mu         sync.Mutex
	created    bool
	loaded     bool
	closed     bool
	peerOrigin string
	cancel     context.CancelFunc
	events     *mailbox[Event]
	inbox      *mailbox[protocol.Message]
}

func NewSandbox(hostOrigin string, opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		hostOrigin: hostOrigin,
		http:       resty.New().SetTimeout(defaultScriptTimeout),
		logger:     log.Logger.With().Str("component", "transport.sandbox").Logger(),
		events:     newMailbox[Event](),
		inbox:      newMailbox[protocol.Message](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sandbox) Create(ctx context.Context, rawURL string) error {
	origin, err := protocol.OriginOf(rawURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.created {
		s.mu.Unlock()
		return ErrPeerExists
	}
	s.created = true
	s.peerOrigin = origin
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx, rawURL, origin)
	return nil
}

func (s *Sandbox) run(ctx context.Context, rawURL, origin string) {
	script, err := s.fetch(ctx, rawURL)
	if err != nil {
		s.fail(origin, err)
		return
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	listeners, err := s.installGlobals(vm, rawURL, origin)
	if err != nil {
		s.fail(origin, err)
		return
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt("sandbox closed")
	})
	defer stop()

	if _, err := vm.RunString(script); err != nil {
		s.fail(origin, fmt.Errorf("transport: peer script: %w", err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.mu.Unlock()
	s.logger.Info().Str("url", rawURL).Msg("transport.Sandbox peer loaded")
	s.events.Put(Event{Kind: EventLoaded, Origin: origin})

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.inbox.C():
			if !ok {
				return
			}
			s.deliver(vm, listeners, msg)
		}
	}
}

func (s *Sandbox) fetch(ctx context.Context, rawURL string) (string, error) {
	resp, err := s.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("transport: fetch peer script: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transport: fetch peer script: status %d", resp.StatusCode())
	}
	body := resp.String()
	if isHTML(resp.Header().Get("Content-Type"), body) {
		return inlineScripts(body)
	}
	return body, nil
}

var errNoInlineScript = errors.New("transport: peer page has no inline script")

func isHTML(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(body), "<")
}

// inlineScripts joins the page's inline classic scripts. External and
// non-JavaScript script elements are skipped.
func inlineScripts(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("transport: parse peer page: %w", err)
	}
	var parts []string
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if _, external := sel.Attr("src"); external {
			return
		}
		switch strings.ToLower(strings.TrimSpace(sel.AttrOr("type", ""))) {
		case "", "text/javascript", "application/javascript":
		default:
			return
		}
		if code := strings.TrimSpace(sel.Text()); code != "" {
			parts = append(parts, code)
		}
	})
	if len(parts) == 0 {
		return "", errNoInlineScript
	}
	return strings.Join(parts, "\n;\n"), nil
}

func (s *Sandbox) fail(origin string, err error) {
	s.logger.Warn().Err(err).Msg("transport.Sandbox peer failed to load")
	s.events.Put(Event{Kind: EventLoadFailed, Origin: origin, Err: err})
}

type messageListeners struct {
	fns []goja.Callable
}

func (s *Sandbox) installGlobals(vm *goja.Runtime, rawURL, origin string) (*messageListeners, error) {
	listeners := &messageListeners{}
	global := vm.GlobalObject()

	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, err
		}
	}
	if err := vm.Set("self", global); err != nil {
		return nil, err
	}
	if err := vm.Set("window", global); err != nil {
		return nil, err
	}

	location := vm.NewObject()
	_ = location.Set("origin", origin)
	_ = location.Set("href", rawURL)
	if err := vm.Set("location", location); err != nil {
		return nil, err
	}

	parent := vm.NewObject()
	_ = parent.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		s.postMessage(call.Argument(0), call.Argument(1), origin)
		return goja.Undefined()
	})
	if err := vm.Set("parent", parent); err != nil {
		return nil, err
	}

	if err := vm.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		if call.Argument(0).String() != "message" {
			return goja.Undefined()
		}
		if fn, ok := goja.AssertFunction(call.Argument(1)); ok {
			listeners.fns = append(listeners.fns, fn)
		}
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		_ = console.Set(level, s.consoleFunc(level))
	}
	if err := vm.Set("console", console); err != nil {
		return nil, err
	}
	return listeners, nil
}

// postMessage is parent.postMessage as seen from inside the peer.
func (s *Sandbox) postMessage(data, target goja.Value, origin string) {
	if target == nil || goja.IsUndefined(target) || goja.IsNull(target) {
		s.logger.Warn().Msg("transport.Sandbox postMessage without target origin dropped")
		return
	}
	t := strings.TrimSpace(target.String())
	if t != "*" && !protocol.SameOrigin(t, s.hostOrigin) {
		s.logger.Debug().Str("target", t).Msg("transport.Sandbox postMessage target mismatch dropped")
		return
	}
	var exported any
	if data != nil {
		exported = data.Export()
	}
	s.events.Put(Event{Kind: EventMessage, Origin: origin, Data: cloneData(exported)})
}

func (s *Sandbox) deliver(vm *goja.Runtime, listeners *messageListeners, msg protocol.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn().Err(err).Msg("transport.Sandbox encode inbound message")
		return
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return
	}
	data, err := parse(goja.Undefined(), vm.ToValue(string(raw)))
	if err != nil {
		s.logger.Warn().Err(err).Msg("transport.Sandbox decode inbound message")
		return
	}
	event := vm.NewObject()
	_ = event.Set("data", data)
	_ = event.Set("origin", s.hostOrigin)

	handlers := append([]goja.Callable(nil), listeners.fns...)
	if fn, ok := goja.AssertFunction(vm.GlobalObject().Get("onmessage")); ok {
		handlers = append(handlers, fn)
	}
	if len(handlers) == 0 {
		s.logger.Debug().Str("type", msg.Type()).Msg("transport.Sandbox no message handler")
		return
	}
	for _, fn := range handlers {
		if _, err := fn(vm.GlobalObject(), event); err != nil {
			s.logger.Warn().Err(err).Str("type", msg.Type()).Msg("transport.Sandbox handler error")
		}
	}
}

func (s *Sandbox) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		s.logger.Debug().Str("level", level).Msg("peer console: " + strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (s *Sandbox) Send(msg protocol.Message, targetOrigin string) error {
	clone, err := protocol.Clone(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	err = checkSend(targetOrigin, s.peerOrigin, s.loaded, s.closed)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !s.inbox.Put(clone) {
		return ErrClosed
	}
	return nil
}

func (s *Sandbox) Events() <-chan Event {
	return s.events.C()
}

func (s *Sandbox) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.loaded = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.inbox.Close()
	s.events.Close()
	return nil
}
