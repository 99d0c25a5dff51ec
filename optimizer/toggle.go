package optimizer

import (
	"context"
	"sync/atomic"
)

// The process-wide toggle is read-mostly: requests check it on every
// field, mutation happens only through the scoped Disable/Enable guards.
var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

type enabledKey struct{}

// Disable turns optimization off process-wide and returns a restore
// function. The restore reinstates the prior state unconditionally, so
// guards nest and compose under stack discipline:
//
//	restore := optimizer.Disable()
//	defer restore()
func Disable() (restore func()) {
	return setEnabled(false)
}

// Enable is the symmetric scoped guard for turning optimization on inside
// a disabled region.
func Enable() (restore func()) {
	return setEnabled(true)
}

func setEnabled(v bool) func() {
	prev := enabled.Swap(v)
	return func() { enabled.Store(prev) }
}

// WithEnabled overrides the process-wide toggle for one execution scope.
// The override travels with the context and never leaks across requests.
func WithEnabled(ctx context.Context, v bool) context.Context {
	return context.WithValue(ctx, enabledKey{}, v)
}

// Enabled reports whether optimization applies in this scope: a context
// override wins, otherwise the process-wide toggle decides.
func Enabled(ctx context.Context) bool {
	if v, ok := ctx.Value(enabledKey{}).(bool); ok {
		return v
	}
	return enabled.Load()
}
