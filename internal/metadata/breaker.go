package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/dukerupert/showtrack/internal/metrics"
)

// BreakerSettings tunes the circuit breaker around a Fetcher.
type BreakerSettings struct {
	Name         string
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state count reset period
	Timeout      time.Duration // open-state duration before probing
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings opens after 60% failures over at least 10 requests
// and probes again after two minutes.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:         "tmdb",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// Breaker guards a Fetcher with a circuit breaker. Rejected calls fail with
// ErrTransient so the driver folds them into the per-show error count.
type Breaker struct {
	next   Fetcher
	cb     *gobreaker.CircuitBreaker[*Metadata]
	name   string
	logger *slog.Logger
}

var _ Fetcher = (*Breaker)(nil)

func NewBreaker(next Fetcher, s BreakerSettings, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{next: next, name: s.Name, logger: logger.With("component", "breaker", "name", s.Name)}

	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[*Metadata](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// A missing show is an answer, not an outage.
			return err == nil || errors.Is(err, ErrUnknownShow) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("circuit breaker state change", "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return b
}

func (b *Breaker) Fetch(ctx context.Context, externalID int64) (*Metadata, error) {
	start := time.Now()
	m, err := b.cb.Execute(func() (*Metadata, error) {
		return b.next.Fetch(ctx, externalID)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordMetadataRequest("rejected", time.Since(start))
		return nil, fmt.Errorf("%w: %s circuit: %w", ErrTransient, b.name, err)
	case err != nil:
		metrics.RecordMetadataRequest("failure", time.Since(start))
		return nil, err
	}
	metrics.RecordMetadataRequest("success", time.Since(start))
	return m, nil
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}
