package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"autopilot/internal/models"
)

// Adapter performs one platform mutation. A returned error and Success=false both count
// as a failed attempt; callers retry either way.
type Adapter interface {
	Execute(ctx context.Context, action models.PlatformAction) (models.ActionOutcome, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, action models.PlatformAction) (models.ActionOutcome, error)

func (f AdapterFunc) Execute(ctx context.Context, action models.PlatformAction) (models.ActionOutcome, error) {
	return f(ctx, action)
}

// Router dispatches actions to a per-platform adapter, falling back to Default.
type Router struct {
	Default Adapter

	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRouter(fallback Adapter) *Router {
	return &Router{Default: fallback, adapters: map[string]Adapter{}}
}

func (r *Router) Register(platform string, a Adapter) {
	key := strings.ToLower(strings.TrimSpace(platform))
	if key == "" || a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	r.adapters[key] = a
}

func (r *Router) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	return out
}

func (r *Router) Execute(ctx context.Context, action models.PlatformAction) (models.ActionOutcome, error) {
	key := strings.ToLower(strings.TrimSpace(action.Platform))
	r.mu.RLock()
	a, ok := r.adapters[key]
	r.mu.RUnlock()
	if !ok {
		a = r.Default
	}
	if a == nil {
		return models.ActionOutcome{}, fmt.Errorf("%w: no adapter for platform %q", models.ErrPlatformAction, action.Platform)
	}
	return a.Execute(ctx, action)
}
