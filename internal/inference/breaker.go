package inference

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"resumind/internal/shared/metrics"
	"resumind/internal/shared/telemetry"
)

// BreakerSettings tunes the circuit breaker in front of a provider.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	MinRequests      uint32
	FailureThreshold float64
	Interval         time.Duration
	Timeout          time.Duration
}

// Breaker stops calling a failing provider until its timeout elapses.
type Breaker struct {
	next Service
	cb   *gobreaker.CircuitBreaker[*Response]
}

// NewBreaker wraps next. Caller cancellations are not counted as failures.
func NewBreaker(next Service, s BreakerSettings) *Breaker {
	name := s.Name
	if name == "" {
		name = "inference"
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.SetBreakerState(name, stateValue(to))
			telemetry.Warn("inference.breaker.state_changed", map[string]any{
				"name":              name,
				"from":              from.String(),
				"to":                to.String(),
				"failure_threshold": s.FailureThreshold,
			})
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	metrics.SetBreakerState(name, stateValue(gobreaker.StateClosed))
	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*Response](settings),
	}
}

func (b *Breaker) Feedback(ctx context.Context, doc DocumentRef, instructions string) (*Response, error) {
	if b == nil || b.cb == nil {
		return nil, ErrNotConfigured
	}
	return b.cb.Execute(func() (*Response, error) {
		return b.next.Feedback(ctx, doc, instructions)
	})
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	if b == nil || b.cb == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
