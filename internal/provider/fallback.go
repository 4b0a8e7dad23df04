package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/errortaxonomy"
)

// FallbackSet is an ordered list of drivers sorted by ascending priority.
// SendEmail tries each active driver in order; a non-retryable failure
// moves to the next driver, a retryable failure is re-thrown immediately
// so the send pipeline's own retry loop owns retries.
type FallbackSet struct {
	drivers []Driver
}

// NewFallbackSet builds a fallback set from drivers in priority order.
func NewFallbackSet(drivers ...Driver) *FallbackSet {
	return &FallbackSet{drivers: drivers}
}

func (f *FallbackSet) Name() string { return "fallback" }

// SendEmail tries each driver in order.
func (f *FallbackSet) SendEmail(ctx context.Context, msg *domain.ResolvedMessage) (*domain.SendResult, error) {
	if len(f.drivers) == 0 {
		return nil, errortaxonomy.Permanent("no_driver", "no provider driver configured")
	}

	var lastTransient error
	for _, d := range f.drivers {
		result, err := d.SendEmail(ctx, msg)
		if err == nil {
			return result, nil
		}

		if errors.Is(err, ErrCircuitOpen) {
			lastTransient = err
			continue
		}

		var classified *errortaxonomy.Error
		if errors.As(err, &classified) {
			if classified.Retryable {
				return nil, err
			}
			lastTransient = err
			continue
		}

		return nil, err
	}

	if lastTransient != nil {
		return nil, lastTransient
	}
	return nil, fmt.Errorf("all provider drivers exhausted")
}
