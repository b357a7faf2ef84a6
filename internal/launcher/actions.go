package launcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrActionNotFound  = errors.New("action not found")
	ErrDuplicateAction = errors.New("action already registered")
)

// Request is one authenticated api_call.
type Request struct {
	Action    string
	Payload   map[string]any
	RequestID string
	Origin    string
}

// Action executes a remote call and returns its JSON-serializable result.
type Action func(ctx context.Context, req Request) (any, error)

// Registry stores actions by name.
type Registry struct {
	repo map[string]Action
	mu   sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{repo: make(map[string]Action)}
}

func (r *Registry) Register(name string, action Action) error {
	name = strings.TrimSpace(name)
	if name == "" || action == nil {
		return fmt.Errorf("register action: name and func required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.repo[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, name)
	}
	r.repo[name] = action
	return nil
}

func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.repo[name]
	return a, ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.repo))
	for name := range r.repo {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// registerBuiltins installs getStatus and echo.
func (l *Launcher) registerBuiltins() error {
	if err := l.Registry.Register("getStatus", func(_ context.Context, req Request) (any, error) {
		return map[string]any{
			"launcher":      l.Name,
			"uptime":        l.uptime().String(),
			"authenticated": true,
			"origin":        req.Origin,
			"actions":       l.Registry.Names(),
		}, nil
	}); err != nil {
		return err
	}
	return l.Registry.Register("echo", func(_ context.Context, req Request) (any, error) {
		if req.Payload == nil {
			return map[string]any{}, nil
		}
		return req.Payload, nil
	})
}
