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

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const publishRetries = 3

// NATSConfig configures the JetStream publisher.
type NATSConfig struct {
	URL    string
	Stream string
	Name   string
}

// NATSPublisher writes events to a JetStream stream bound to "tenant.>".
type NATSPublisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewNATSPublisher connects, then ensures the stream exists.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	log := slog.Default().With(slog.String("component", "nats"))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("async error", slog.String("error", err.Error()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:        cfg.Stream,
		Description: "Tenant lifecycle events",
		Subjects:    []string{"tenant.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Discard:     nats.DiscardOld,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Warn("could not create stream", slog.String("stream", cfg.Stream), slog.String("error", err.Error()))
	}

	return &NATSPublisher{conn: conn, js: js}, nil
}

// Publish sends e with a bounded exponential backoff.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for attempt := 1; ; attempt++ {
		_, err = p.js.Publish(e.Type, data, nats.Context(ctx), nats.MsgId(e.TenantID+":"+e.Type+":"+e.OccurredAt.Format(time.RFC3339Nano)))
		if err == nil || attempt == publishRetries {
			break
		}
		backoff := time.Duration(1<<uint(attempt-1)) * 250 * time.Millisecond
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish %s cancelled: %w", e.Type, ctx.Err())
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
