package common

import (
	"context"
	"errors"
	"sync"
)

// ErrReentrantCall is returned when a module entry point is invoked from
// within one of its own outbound collaborator calls.
var ErrReentrantCall = errors.New("reentrant call rejected")

type callMarkerKey struct {
	module string
}

// WithinCall marks the context as originating inside the module's critical
// section. Collaborators receive this context so that any call they make back
// into the module can be detected.
func WithinCall(ctx context.Context, module string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callMarkerKey{module: module}, true)
}

// InCall reports whether the context carries the module's call marker.
func InCall(ctx context.Context, module string) bool {
	if ctx == nil {
		return false
	}
	marked, _ := ctx.Value(callMarkerKey{module: module}).(bool)
	return marked
}

// CallGuard serialises a module's mutating entry points and rejects nested
// calls that arrive through collaborator callbacks.
type CallGuard struct {
	mu     sync.Mutex
	module string
}

// NewCallGuard constructs a guard for the named module.
func NewCallGuard(module string) *CallGuard {
	return &CallGuard{module: module}
}

// Enter acquires the guard. The returned context must be passed to every
// collaborator invoked while the guard is held and release must be called on
// every exit path, typically via defer.
func (g *CallGuard) Enter(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if InCall(ctx, g.module) {
		return ctx, func() {}, ErrReentrantCall
	}
	g.mu.Lock()
	return WithinCall(ctx, g.module), g.mu.Unlock, nil
}

// Nested reports whether ctx was produced by this guard's Enter.
func (g *CallGuard) Nested(ctx context.Context) bool {
	return InCall(ctx, g.module)
}
