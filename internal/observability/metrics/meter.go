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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	// Get meter from global meter provider
	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// Recorder holds the domain counters. A nil *Recorder records nothing, so
// services can be constructed without metrics in tests.
type Recorder struct {
	otpIssued      metric.Int64Counter
	otpVerified    metric.Int64Counter
	otpExhausted   metric.Int64Counter
	gateDenied     metric.Int64Counter
	bootstraps     metric.Int64Counter
	signups        metric.Int64Counter
	unscopedAccess metric.Int64Counter
}

// NewRecorder registers the domain instruments on m.
func NewRecorder(m *Meter) (*Recorder, error) {
	r := &Recorder{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&r.otpIssued, "atelier.otp.issued", "One-time codes issued by generate or resend"},
		{&r.otpVerified, "atelier.otp.verifications", "OTP verification attempts by result"},
		{&r.otpExhausted, "atelier.otp.resend_exhausted", "Resend requests refused because the slot was exhausted"},
		{&r.gateDenied, "atelier.gate.denied", "Requests denied by the subscription gate by reason"},
		{&r.bootstraps, "atelier.tenant.bootstraps", "Tenant bootstrap runs by outcome"},
		{&r.signups, "atelier.signup.completed", "Completed tenant signups"},
		{&r.unscopedAccess, "atelier.scope.unscoped", "Data access through the unscoped escape hatch"},
	}
	for _, c := range counters {
		counter, err := m.meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return r, nil
}

func (r *Recorder) OTPIssued(ctx context.Context, purpose string, resend bool) {
	if r == nil {
		return
	}
	r.otpIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.Bool("resend", resend),
	))
}

func (r *Recorder) OTPVerified(ctx context.Context, purpose, result string) {
	if r == nil {
		return
	}
	r.otpVerified.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("result", result),
	))
}

func (r *Recorder) OTPResendExhausted(ctx context.Context, purpose string) {
	if r == nil {
		return
	}
	r.otpExhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("purpose", purpose)))
}

func (r *Recorder) GateDenied(ctx context.Context, reason string) {
	if r == nil {
		return
	}
	r.gateDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) TenantBootstrapped(ctx context.Context, ok bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	r.bootstraps.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (r *Recorder) SignupCompleted(ctx context.Context) {
	if r == nil {
		return
	}
	r.signups.Add(ctx, 1)
}

func (r *Recorder) UnscopedAccess(ctx context.Context, reason string) {
	if r == nil {
		return
	}
	r.unscopedAccess.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
