package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnreachable is returned by Follow when the API stopped answering.
var ErrUnreachable = errors.New("episim API unreachable")

// Follow polls until the run is over, ctx is cancelled, or maxFailures polls in
// a row fail. onPoll, if set, sees every successful observation.
func Follow(ctx context.Context, o *Observer, interval time.Duration, maxFailures int, onPoll func(*Observation)) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	if maxFailures <= 0 {
		return fmt.Errorf("max failures must be positive, got %d", maxFailures)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		obs, err := o.Observe()
		if err != nil {
			failures++
			slog.Warn("observe failed", "error", err, "failures", failures)
			if failures >= maxFailures {
				return fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, failures, err)
			}
		} else {
			failures = 0
			if onPoll != nil {
				onPoll(obs)
			}
			if obs.Status.Over {
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
