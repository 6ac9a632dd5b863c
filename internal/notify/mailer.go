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
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/atelierhq/atelier/internal/observability/logger"
)

// Email is a rendered message ready for a transport.
type Email struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// LogMailer writes emails to the log instead of sending them. The plain text
// body is logged so codes and links are usable in development.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, e Email) error {
	slog.InfoContext(ctx, "email (log transport)",
		logger.Component("mail"),
		logger.Email(e.To),
		logger.String("subject", e.Subject),
		logger.String("body", e.Text),
	)
	return nil
}

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

func NewSendGridMailer(apiKey, from, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, e Email) error {
	msg := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		e.Subject,
		mail.NewEmail(e.ToName, e.To),
		e.Text,
		e.HTML,
	)

	tracking := mail.NewTrackingSettings()
	click := mail.NewClickTrackingSetting()
	click.SetEnable(false)
	tracking.SetClickTracking(click)
	msg.SetTrackingSettings(tracking)

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}
