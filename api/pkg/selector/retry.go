package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

// Outcome classifies one attempt so retry logic never has to inspect error
// text. Retryable moves on to the next candidate; Fatal aborts the whole
// action immediately.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

// Action performs the real work against one resolved locator. It is handed
// a context bounded by the per-try timeout.
type Action func(ctx context.Context, loc Locator) (Outcome, error)

type Options struct {
	PerTryTimeout time.Duration
	MaxRounds     int
	Backoff       time.Duration
}

func (o Options) withDefaults() Options {
	if o.PerTryTimeout <= 0 {
		o.PerTryTimeout = 3 * time.Second
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	return o
}

// Result reports which candidate finally worked and how much effort it took.
type Result struct {
	Locator  Locator
	Round    int
	Attempts int
}

type fatalActionError struct{ err error }

func (e *fatalActionError) Error() string { return e.err.Error() }
func (e *fatalActionError) Unwrap() error { return e.err }

// ResolveAndAct tries every candidate locator of the strategy once per
// round, with a short per-try budget. If the whole round fails it backs off
// and starts another, up to MaxRounds, then returns a definitive failure
// naming everything it tried.
func ResolveAndAct(ctx context.Context, strategy Strategy, action Action, opts Options) (Result, error) {
	opts = opts.withDefaults()

	if len(strategy.Locators) == 0 {
		return Result{}, fmt.Errorf("strategy %q has no locators", strategy.Action)
	}

	var res Result

	err := retry.Do(
		func() error {
			res.Round++
			var lastErr error
			for _, loc := range strategy.Locators {
				if err := ctx.Err(); err != nil {
					return retry.Unrecoverable(err)
				}

				res.Attempts++
				tryCtx, cancel := context.WithTimeout(ctx, opts.PerTryTimeout)
				outcome, err := action(tryCtx, loc)
				cancel()

				switch outcome {
				case OutcomeOK:
					res.Locator = loc
					return nil
				case OutcomeFatal:
					return retry.Unrecoverable(&fatalActionError{err: err})
				default:
					lastErr = err
				}
			}
			return fmt.Errorf("round %d: all %d locators failed for %q: %w",
				res.Round, len(strategy.Locators), strategy.Action, lastErr)
		},
		retry.Attempts(uint(opts.MaxRounds)),
		retry.Delay(opts.Backoff),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().
				Err(err).
				Uint("round", n+1).
				Str("action", strategy.Action).
				Msg("retrying UI action")
		}),
	)
	if err != nil {
		var fatal *fatalActionError
		if errors.As(err, &fatal) {
			return res, fatal.err
		}
		return res, fmt.Errorf("action %q failed after %d rounds (tried %s): %w",
			strategy.Action, res.Round, describeLocators(strategy.Locators), err)
	}

	return res, nil
}

func describeLocators(locs []Locator) string {
	parts := make([]string, 0, len(locs))
	for _, l := range locs {
		parts = append(parts, l.String())
	}
	return strings.Join(parts, ", ")
}
