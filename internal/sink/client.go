// Package sink forwards computed mixes to an external spreadsheet through a
// form-encoded POST. Forwarding is best effort: one attempt, short timeout,
// and failures come back as a warning, never as an error.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"SmartMix/internal/logging"
	"SmartMix/internal/metrics"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultFailures = 3
	defaultCooldown = 30 * time.Second
)

// Config describes the sheet endpoint.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	// Fields maps record keys to form field names (e.g. "cs_28d" -> "entry.1234").
	// Unmapped keys are posted under their own name.
	Fields map[string]string
	// BreakerFailures consecutive failures open the circuit for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Status is what the caller shows next to an already computed result.
type Status struct {
	Attempted bool   `json:"attempted"`
	OK        bool   `json:"ok"`
	Warning   string `json:"warning,omitempty"`
}

// Client posts records to the sheet endpoint.
type Client struct {
	endpoint string
	fields   map[string]string
	timeout  time.Duration
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[struct{}]
	log      zerolog.Logger
}

// NewClient builds a client. An empty endpoint yields a disabled client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultCooldown
	}

	log := logging.With().Str("component", "sink").Logger()
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "sheet-sink",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("sheet sink circuit changed state")
		},
	})

	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		fields:   cfg.Fields,
		timeout:  cfg.Timeout,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  breaker,
		log:      log,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Send makes a single attempt to forward record.
func (c *Client) Send(ctx context.Context, record map[string]string) Status {
	if !c.Enabled() {
		return Status{}
	}

	form := url.Values{}
	for k, v := range record {
		if name, ok := c.fields[k]; ok && name != "" {
			k = name
		}
		form.Set(k, v)
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, form)
	})
	if err != nil {
		outcome := "failed"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "open_circuit"
		}
		metrics.SyncAttempts.WithLabelValues(outcome).Inc()
		c.log.Warn().Err(err).Str("outcome", outcome).Msg("sheet sync failed")
		return Status{Attempted: true, OK: false, Warning: "result computed but not saved to the research sheet"}
	}

	metrics.SyncAttempts.WithLabelValues("ok").Inc()
	return Status{Attempted: true, OK: true}
}

func (c *Client) post(ctx context.Context, form url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
