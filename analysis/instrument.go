package analysis

import (
	"context"
	"time"
)

// Observer receives the latency and outcome of provider calls.
type Observer interface {
	ObserveProvider(provider, result string, elapsed time.Duration)
}

type instrumented struct {
	name     string
	next     Provider
	observer Observer
}

// Instrument reports every call of next to observer under name.
func Instrument(next Provider, name string, observer Observer) Provider {
	if observer == nil {
		return next
	}
	return &instrumented{name: name, next: next, observer: observer}
}

func (i *instrumented) Analyze(ctx context.Context, recordCount int) (*Result, error) {
	start := time.Now()
	result, err := i.next.Analyze(ctx, recordCount)

	outcome := "success"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = "canceled"
	default:
		outcome = "error"
	}
	i.observer.ObserveProvider(i.name, outcome, time.Since(start))
	return result, err
}
