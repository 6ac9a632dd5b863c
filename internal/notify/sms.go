// Copyright 2026 The Atelier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/atelierhq/atelier/internal/observability/logger"
)

// SMS is one text message. Code is set for one-time codes so the log-only
// transport can surface it.
type SMS struct {
	To   string
	Text string
	Code string
}

// SMSSender delivers one SMS.
type SMSSender interface {
	Send(ctx context.Context, m SMS) error
}

// LogSMSSender is used when no SMS provider is configured. It logs the code
// at WARN so an operator can relay it.
type LogSMSSender struct{}

func (LogSMSSender) Send(ctx context.Context, m SMS) error {
	slog.WarnContext(ctx, "sms provider not configured, code logged for manual delivery",
		logger.Component("sms"),
		logger.Mobile(m.To),
		logger.OTPCode(m.Code),
	)
	return nil
}

// ErrGatewayRejected is returned for non-2xx gateway responses.
var ErrGatewayRejected = errors.New("sms gateway rejected message")

// GatewayConfig configures GatewaySMSSender.
type GatewayConfig struct {
	URL      string
	APIToken string
	SenderID string
	Timeout  time.Duration
}

// GatewaySMSSender posts messages to an HTTP SMS gateway. A circuit breaker
// stops calls for a minute after repeated failures.
type GatewaySMSSender struct {
	cfg    GatewayConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func NewGatewaySMSSender(cfg GatewayConfig) *GatewaySMSSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GatewaySMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sms-gateway",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed",
					logger.Component("sms"),
					logger.String("circuit_breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
		}),
	}
}

type gatewayRequest struct {
	To      string `json:"to"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func (g *GatewaySMSSender) Send(ctx context.Context, m SMS) error {
	body, err := json.Marshal(gatewayRequest{To: m.To, Sender: g.cfg.SenderID, Message: m.Text})
	if err != nil {
		return err
	}
	_, err = g.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if g.cfg.APIToken != "" {
			req.Header.Set("Authorization", "Bearer "+g.cfg.APIToken)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	return nil
}
