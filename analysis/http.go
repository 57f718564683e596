package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// HTTPProvider calls a remote prediction service. Repeated failures open a
// circuit breaker so a dead service fails fast instead of holding ingestions.
type HTTPProvider struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// HTTPProviderConfig configures the remote provider.
type HTTPProviderConfig struct {
	URL                 string
	Timeout             time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

type analyzeRequest struct {
	RecordCount int `json:"record_count"`
}

// NewHTTPProvider creates a provider posting record counts to cfg.URL.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	failures := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:    "analysis-provider",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// calls abandoned by the caller say nothing about the service
		IsSuccessful: func(err error) bool {
			var abandoned *abandonedCall
			return err == nil || errors.As(err, &abandoned)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &HTTPProvider{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Analyze posts the record count and decodes the service's result.
func (p *HTTPProvider) Analyze(ctx context.Context, recordCount int) (*Result, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		res, err := p.call(ctx, recordCount)
		if err != nil && ctx.Err() != nil {
			return nil, &abandonedCall{err: err}
		}
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("analysis provider: %w", err)
	}
	return out.(*Result), nil
}

// abandonedCall marks a failure caused by the caller's context.
type abandonedCall struct {
	err error
}

func (a *abandonedCall) Error() string { return a.err.Error() }
func (a *abandonedCall) Unwrap() error { return a.err }

// BreakerState reports the circuit breaker state, e.g. "closed" or "open".
func (p *HTTPProvider) BreakerState() string {
	return p.breaker.State().String()
}

func (p *HTTPProvider) call(ctx context.Context, recordCount int) (*Result, error) {
	body, err := json.Marshal(analyzeRequest{RecordCount: recordCount})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}
