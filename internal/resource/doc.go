// Package resource implements the Controller for store-wide limits.
//
// The Controller manages three resource types:
//
//   - Capacity: reserve and release bytes of store file (non-blocking, fail-fast)
//   - Concurrency: limit maintenance workers (validation, snapshots)
//   - IO: rate-limit snapshot and restore streams
//
// # Capacity
//
// The address space reserves capacity for every chunk it appends to the store
// file. AcquireCapacity never blocks; once the limit is reached the store
// reports a capacity error and the caller decides what to do:
//
//	rc := resource.NewController(resource.Config{
//	    CapacityLimitBytes: 1 << 30,
//	})
//
//	if err := rc.AcquireCapacity(chunkSize); err != nil {
//	    // ErrCapacityExceeded
//	}
//
// # IO Rate Limiting
//
// Token bucket limiter for snapshot streams:
//
//	w := resource.NewRateLimitedWriter(ctx, file, rc)
//	r := resource.NewRateLimitedReader(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
