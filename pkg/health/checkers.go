package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// Pinger is a connection that can be pinged, such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be pinged.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// BacklogCheck fails when depth reports at least limit queued items.
func BacklogCheck(depth func() int, limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := depth(); n >= limit {
			return errors.Errorf("backlog %d reached limit %d", n, limit)
		}
		return nil
	}
}
