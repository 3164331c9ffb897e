// Package breaker wraps a VendorClient with a circuit breaker so a vendor
// outage fails the remaining days of a run fast instead of waiting out every
// retry schedule.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
	"github.com/ericfisherdev/barsync/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.VendorClient = (*Client)(nil)

// Settings tunes the breaker. Zero fields take the defaults below.
type Settings struct {
	// ConsecutiveFailures opens the circuit. Default 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a half-open probe. Default 2m.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open. Default 1.
	HalfOpenRequests uint32
}

// Client implements driven.VendorClient by delegating to another client
// through a gobreaker circuit breaker.
type Client struct {
	next driven.VendorClient
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// Wrap returns next guarded by a circuit breaker named after its vendor.
func Wrap(next driven.VendorClient, s Settings) *Client {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 2 * time.Minute
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}

	name := string(next.Vendor()) + "-api"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		// Credential rejections, expired sessions and cancellations say
		// nothing about vendor health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var authErr *model.AuthError
			return errors.As(err, &authErr) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state transition", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{next: next, cb: cb, name: name}
}

// Vendor returns the wrapped client's vendor.
func (c *Client) Vendor() model.Vendor { return c.next.Vendor() }

// State returns the current breaker state.
func (c *Client) State() gobreaker.State { return c.cb.State() }

// Authenticate delegates to the wrapped client through the breaker.
func (c *Client) Authenticate(ctx context.Context, cred model.ExternalCredential) (model.SessionHandle, error) {
	handle, err := castResult[model.SessionHandle](c.cb.Execute(func() (any, error) {
		h, err := c.next.Authenticate(ctx, cred)
		return &h, err
	}))
	if err != nil {
		if rejected(err) {
			return model.SessionHandle{}, &model.AuthError{Vendor: c.Vendor(), Err: c.unavailable(err)}
		}
		return model.SessionHandle{}, err
	}
	return *handle, nil
}

// Collect delegates to the wrapped client through the breaker.
func (c *Client) Collect(ctx context.Context, session model.SessionHandle, cred model.ExternalCredential, dataType model.DataType, day time.Time) (model.RawBatch, error) {
	batch, err := castResult[model.RawBatch](c.cb.Execute(func() (any, error) {
		b, err := c.next.Collect(ctx, session, cred, dataType, day)
		return &b, err
	}))
	if err != nil {
		if rejected(err) {
			return model.RawBatch{}, &model.CollectError{Vendor: c.Vendor(), DataType: dataType, Err: c.unavailable(err)}
		}
		return model.RawBatch{}, err
	}
	return *batch, nil
}

func (c *Client) unavailable(err error) error {
	slog.Warn("circuit breaker rejected vendor request", "breaker", c.name, "error", err)
	return fmt.Errorf("%w: %v", model.ErrVendorUnavailable, err)
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// castResult type-asserts the breaker result, passing errors through untouched.
func castResult[T any](result any, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
