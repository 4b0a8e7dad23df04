// Package slo implements the SLO controller: poll error-rate and
// queue-age-p95 every 5 minutes, and adapt worker concurrency when either
// crosses a violation threshold.
package slo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ignite/gatewayd/internal/pkg/logger"
)

// Thresholds are the violation limits.
type Thresholds struct {
	ErrorRate     float64       // default 0.05
	QueueAgeP95   time.Duration // default 120s
}

// DefaultThresholds is the out-of-the-box violation limit.
var DefaultThresholds = Thresholds{ErrorRate: 0.05, QueueAgeP95: 120 * time.Second}

// MetricsSource reports the current windowed metrics the controller polls.
type MetricsSource interface {
	ErrorRate(ctx context.Context) (float64, error)
	QueueAgeP95(ctx context.Context) (time.Duration, error)
}

// WorkerPool is the concurrency knob the controller pauses, resizes, and
// resumes. Implementations must make SetConcurrency safe to call while
// workers are processing jobs.
type WorkerPool interface {
	Pause(ctx context.Context) error
	SetConcurrency(n int)
	Resume(ctx context.Context) error
}

// Controller runs the periodic probe-and-adjust loop.
type Controller struct {
	metrics    MetricsSource
	pool       WorkerPool
	thresholds Thresholds
	original   int

	mu               sync.Mutex
	current          int
	consecutiveOK    int
}

// Config bundles Controller's collaborators. OriginalConcurrency is the
// configured worker pool size the controller never raises concurrency
// above.
type Config struct {
	Metrics             MetricsSource
	Pool                WorkerPool
	Thresholds          Thresholds
	OriginalConcurrency int
}

func New(cfg Config) *Controller {
	th := cfg.Thresholds
	if th.ErrorRate == 0 && th.QueueAgeP95 == 0 {
		th = DefaultThresholds
	}
	return &Controller{
		metrics:    cfg.Metrics,
		pool:       cfg.Pool,
		thresholds: th,
		original:   cfg.OriginalConcurrency,
		current:    cfg.OriginalConcurrency,
	}
}

// Run blocks, probing every interval until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Probe(ctx); err != nil {
				logger.Error("slo probe failed", "error", err.Error())
			}
		}
	}
}

// Probe runs a single check-and-adjust cycle.
func (c *Controller) Probe(ctx context.Context) error {
	errorRate, err := c.metrics.ErrorRate(ctx)
	if err != nil {
		return err
	}
	queueAgeP95, err := c.metrics.QueueAgeP95(ctx)
	if err != nil {
		return err
	}

	violated := errorRate > c.thresholds.ErrorRate || queueAgeP95 > c.thresholds.QueueAgeP95

	c.mu.Lock()
	defer c.mu.Unlock()

	if violated {
		c.consecutiveOK = 0
		next := c.current / 2
		if next < 1 {
			next = 1
		}
		if next == c.current {
			return nil
		}
		logger.Warn("slo violation, reducing concurrency",
			"error_rate", errorRate, "queue_age_p95", queueAgeP95.String(),
			"from", c.current, "to", next)
		return c.resize(ctx, next)
	}

	c.consecutiveOK++
	if c.consecutiveOK < 3 {
		return nil
	}
	c.consecutiveOK = 0

	next := int(math.Floor(float64(c.current) * 1.5))
	if next > c.original {
		next = c.original
	}
	if next == c.current {
		return nil
	}
	logger.Info("slo recovered, raising concurrency", "from", c.current, "to", next)
	return c.resize(ctx, next)
}

func (c *Controller) resize(ctx context.Context, n int) error {
	if err := c.pool.Pause(ctx); err != nil {
		return err
	}
	c.pool.SetConcurrency(n)
	c.current = n
	return c.pool.Resume(ctx)
}

// Concurrency returns the controller's current view of worker concurrency.
func (c *Controller) Concurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
