// Package push delivers mobile push notifications through an HTTP gateway.
// A process-wide token bucket throttles gateway calls so a large delivery run
// cannot flood the provider.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	URL        string
	AppKey     string
	Secret     string
	RatePerSec int
	Timeout    time.Duration
}

// Gateway is an HTTP push gateway client.
type Gateway struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Gateway {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		// Burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

type payload struct {
	DeviceTokens []string          `json:"device_tokens"`
	Alert        string            `json:"alert"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Send pushes one message to the given device tokens. The call honors the
// gateway rate limit and the configured HTTP timeout; cancellation aborts the
// wait and the request.
func (g *Gateway) Send(ctx context.Context, tokens []string, message string, extra map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload{DeviceTokens: tokens, Alert: message, Extra: extra})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.AppKey != "" {
		req.SetBasicAuth(g.cfg.AppKey, g.cfg.Secret)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push gateway: status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	return nil
}
