package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
)

// ReconnectConfig configures exponential backoff around Producer.Start.
// Defaults (spec.md §4.9 camera retry policy) are base 500ms, cap 30s,
// max 10 attempts — distinct from stream-capture's rtsp reconnect
// schedule (1s base, 5 attempts), which backs a different transport.
type ReconnectConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultReconnectConfig returns the spec.md §4.9 camera retry policy.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts: 10,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// ConnectFunc attempts one (re)connection, returning the frame channel on
// success.
type ConnectFunc func(ctx context.Context) (<-chan *frame.Frame, error)

// RunWithReconnect retries connectFn with exponential backoff until it
// succeeds, attempts are exhausted, or ctx is cancelled. attempts, a
// shared counter, is incremented once per failed attempt so callers can
// surface it in Stats.
func RunWithReconnect(ctx context.Context, connectFn ConnectFunc, cfg ReconnectConfig, attempts *atomic.Uint32) (<-chan *frame.Frame, error) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ch, err := connectFn(ctx)
		if err == nil {
			return ch, nil
		}

		attempt++
		attempts.Add(1)
		slog.Warn("camera: connect failed", "attempt", attempt, "error", err)

		if attempt >= cfg.MaxAttempts {
			return nil, fmt.Errorf("camera: giving up after %d attempts: %w", attempt, err)
		}

		delay := backoff(attempt, cfg)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func backoff(attempt int, cfg ReconnectConfig) time.Duration {
	delay := cfg.BaseDelay * time.Duration(uint64(1)<<uint(attempt-1))
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}
