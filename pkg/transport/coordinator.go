package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tenantauth/pkg/metrics"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// DefaultRefreshTimeout bounds a refresh probe.
const DefaultRefreshTimeout = 30 * time.Second

// errRefreshAborted is seen by waiters when the probe panicked.
var errRefreshAborted = errors.New("transport: refresh aborted")

// latch is resolved once, when the refresh it belongs to settles.
type latch struct {
	done    chan struct{}
	err     error
	waiters int
}

// Coordinator runs at most one refresh at a time. Callers arriving while a refresh is in
// flight wait for its outcome instead of starting another.
type Coordinator struct {
	// Probe re-validates the session
	Probe func(ctx context.Context) error

	// Timeout bounds each probe; DefaultRefreshTimeout if zero
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	mu       sync.Mutex
	inflight *latch
	gen      uint64 // settled refreshes
	last     error  // outcome of the latest settled refresh
}

// Refresh joins the in-flight refresh or starts one, and returns its outcome. The probe
// is detached from ctx cancellation; ctx only bounds how long a waiter waits.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	return c.refreshLocked(ctx)
}

// Generation returns the number of refreshes that have settled. Record it before sending
// a request and pass it to RefreshAfter when that request comes back unauthorized.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// RefreshAfter is Refresh for a request sent at generation gen. If a refresh has settled
// since then, the request was stamped before it and its outcome is returned without
// probing again.
func (c *Coordinator) RefreshAfter(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if c.inflight == nil && c.gen != gen {
		err := c.last
		c.mu.Unlock()
		return err
	}
	return c.refreshLocked(ctx)
}

// refreshLocked is called with c.mu held and releases it.
func (c *Coordinator) refreshLocked(ctx context.Context) error {
	if l := c.inflight; l != nil {
		l.waiters++
		c.mu.Unlock()

		c.Metrics.RefreshWaiter()
		select {
		case <-l.done:
			return l.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l := &latch{done: make(chan struct{}), err: errRefreshAborted}
	c.inflight = l
	c.mu.Unlock()

	c.lead(ctx, l)
	return l.err
}

func (c *Coordinator) lead(ctx context.Context, l *latch) {
	start := time.Now()
	logger := c.logger(ctx)

	// Back to idle whatever the probe does, panics included.
	defer func() {
		c.mu.Lock()
		c.inflight = nil
		c.gen++
		c.last = l.err
		waiters := l.waiters
		c.mu.Unlock()
		close(l.done)

		outcome := metrics.OutcomeSuccess
		if l.err != nil {
			outcome = metrics.OutcomeFailure
		}
		elapsed := time.Since(start)
		c.Metrics.Refresh(outcome, elapsed.Seconds())
		logger.Info("session refresh settled",
			"outcome", outcome,
			"waiters", waiters,
			"duration_ms", elapsed.Milliseconds(),
			"error", l.err,
		)
	}()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	logger.Debug("session refresh started")
	l.err = c.Probe(probeCtx)
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Waiters returns how many callers are waiting on the in-flight refresh.
func (c *Coordinator) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return 0
	}
	return c.inflight.waiters
}

func (c *Coordinator) logger(ctx context.Context) *slog.Logger {
	if c.Logger != nil {
		return c.Logger.With("req_id", slogx.RequestID(ctx))
	}
	return slogx.FromContext(ctx).With("component", "transport")
}
