package resource

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrCapacityExceeded is returned when a reservation would exceed the capacity limit.
var ErrCapacityExceeded = errors.New("capacity limit exceeded")

// Config holds resource limits.
type Config struct {
	// CapacityLimitBytes is the hard limit for the size of the store file.
	// If 0, no hard limit is enforced (only tracking).
	CapacityLimitBytes int64

	// MaxBackgroundWorkers is the maximum number of concurrent maintenance
	// jobs (validation workers, snapshot streams). If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec is the maximum throughput for snapshot and restore IO.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages store-wide resources (capacity, concurrency, IO).
type Controller struct {
	cfg Config

	capSem  *semaphore.Weighted // nil if unlimited
	capUsed atomic.Int64

	bgSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.CapacityLimitBytes > 0 {
		c.capSem = semaphore.NewWeighted(cfg.CapacityLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireCapacity reserves bytes of store capacity.
// Returns ErrCapacityExceeded if the limit would be exceeded.
// Non-blocking - the address space never waits for space to be freed.
func (c *Controller) AcquireCapacity(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.capSem != nil {
		if !c.capSem.TryAcquire(bytes) {
			return ErrCapacityExceeded
		}
	}

	c.capUsed.Add(bytes)
	return nil
}

// ReleaseCapacity returns reserved capacity.
func (c *Controller) ReleaseCapacity(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.capSem != nil {
		c.capSem.Release(bytes)
	}
	c.capUsed.Add(-bytes)
}

// CapacityUsage returns the reserved capacity in bytes.
func (c *Controller) CapacityUsage() int64 {
	if c == nil {
		return 0
	}
	return c.capUsed.Load()
}

// CapacityLimit returns the configured capacity limit in bytes (0 if unlimited).
func (c *Controller) CapacityLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.CapacityLimitBytes
}

// BackgroundWorkers returns the configured number of background slots.
func (c *Controller) BackgroundWorkers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxBackgroundWorkers)
}

// AcquireBackground reserves a background worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground attempts to reserve a background worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > burst {
		if err := c.ioLimiter.WaitN(ctx, burst); err != nil {
			return err
		}
		bytes -= burst
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}

// RateLimitedWriter throttles writes through a Controller's IO limiter.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

// NewRateLimitedWriter wraps w.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, c *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, c: c}
}

func (r *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := r.c.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.w.Write(p)
}

// RateLimitedReader throttles reads through a Controller's IO limiter.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// NewRateLimitedReader wraps r.
func NewRateLimitedReader(ctx context.Context, r io.Reader, c *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, c: c}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.c.AcquireIO(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
