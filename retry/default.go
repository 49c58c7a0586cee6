package retry

import (
	"log/slog"
	"sync"
)

var (
	globalInv  *Invoker
	globalOnce sync.Once
	globalMu   sync.Mutex
)

// DefaultInvoker returns the shared, lazily-initialized invoker. It uses NewInvoker()
// with the default policy and no resolver unless SetGlobal was called first.
func DefaultInvoker() *Invoker {
	globalOnce.Do(func() {
		globalMu.Lock()
		defer globalMu.Unlock()
		if globalInv == nil {
			globalInv = NewInvoker()
		}
	})
	return globalInv
}

// SetGlobal configures the shared invoker. It must be called at startup, before the first
// DefaultInvoker call; later calls are ignored with a warning.
func SetGlobal(inv *Invoker) {
	if inv == nil {
		return
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalInv != nil {
		slog.Warn("retry: SetGlobal called after the global invoker was initialized; ignoring")
		return
	}
	globalInv = inv
}
