package vectorstore

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/xxxsen/mrag/internal/pkg/errors"
)

// errTerminal marks an initialization failure that must not be retried.
var errTerminal = errors.New("terminal initialization failure")

// initGuard runs an initializer at most once successfully. Concurrent
// callers block on the in-flight attempt. A failed attempt may be retried
// unless it was terminal, in which case the same error is returned from
// then on. Every failure carries ErrStoreInit.
type initGuard struct {
	mu    sync.Mutex
	done  bool
	fatal error
}

func (g *initGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	if g.fatal != nil {
		return g.fatal
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		wrapped := apperrors.Wrap(apperrors.ErrStoreInit, "initialize", err)
		if errors.Is(err, errTerminal) {
			g.fatal = wrapped
		}
		return wrapped
	}
	g.done = true
	return nil
}

func (g *initGuard) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}
