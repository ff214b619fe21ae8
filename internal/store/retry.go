package store

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/lib/pq"

	"github.com/dimajoyti/aave-sentinel/internal/xerrors"
)

// retryAttempts/retryBaseDelay/retryMultiplier implement spec.md §5's DB
// timeout policy: 3 retries, ×1.5 backoff, 250 ms base.
const (
	retryAttempts   = 3
	retryBaseDelay  = 250 * time.Millisecond
	retryMultiplier = 1.5
)

// retryableCodes is the Postgres error-code class list spec.md §5 names.
var retryableCodes = map[string]bool{
	"connection_exception":  true,
	"serialization_failure": true,
	"deadlock_detected":     true,
	"admin_shutdown":        true,
	"too_many_connections":  true,
}

// retryable classifies err per spec.md §5/§7's DatabaseError rules:
// Postgres codes in retryableCodes, plus the stdlib connection-refused/reset/
// timeout triad a dropped TCP connection to Postgres raises.
func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableCodes[pqErr.Code.Name()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}

// withRetry runs op up to retryAttempts+1 times, backing off ×1.5 from
// retryBaseDelay between retryable failures, and classifies the final error
// as xerrors.KindDatabaseError. It logs "recovered" semantics are left to
// the caller (the Store methods), which see only the last error or nil.
func withRetry(ctx context.Context, op func() error) error {
	delay := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= retryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == retryAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.KindDatabaseError, "context cancelled during retry", ctx.Err())
		}
		delay = time.Duration(float64(delay) * retryMultiplier)
	}
	return xerrors.Wrap(xerrors.KindDatabaseError, "query failed", lastErr)
}
