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
	"time"

	"github.com/atelierhq/atelier/internal/otp"
)

// Notifier composes account messages and hands them to the transports.
// With a dispatcher, delivery is asynchronous and only enqueue errors are
// returned; without one, it sends inline.
type Notifier struct {
	renderer    *Renderer
	mailer      Mailer
	sms         SMSSender
	dispatcher  *Dispatcher
	productName string
}

var _ otp.Sender = (*Notifier)(nil)

func NewNotifier(r *Renderer, mailer Mailer, sms SMSSender, d *Dispatcher, productName string) *Notifier {
	if productName == "" {
		productName = "Atelier"
	}
	return &Notifier{renderer: r, mailer: mailer, sms: sms, dispatcher: d, productName: productName}
}

func (n *Notifier) submit(ctx context.Context, kind string, run func(context.Context) error) error {
	if n.dispatcher == nil {
		return run(ctx)
	}
	return n.dispatcher.Enqueue(Job{Kind: kind, Run: run})
}

// OTPSubject is the subject line of code emails.
func (n *Notifier) OTPSubject() string {
	return fmt.Sprintf("Your %s Verification Code", n.productName)
}

// SendOTPEmail renders and sends a one-time code email.
func (n *Notifier) SendOTPEmail(ctx context.Context, m otp.EmailMessage) error {
	minutes := int(m.ValidFor / time.Minute)
	data := &EmailData{
		Subject:       n.OTPSubject(),
		Preheader:     fmt.Sprintf("Your verification code is %s", m.Code),
		ProductName:   n.productName,
		Email:         m.To,
		Name:          m.Name,
		TenantName:    m.TenantName,
		Code:          m.Code,
		ExpiryMinutes: minutes,
	}
	html, err := n.renderer.Render(TemplateOTPCode, data)
	if err != nil {
		return err
	}
	e := Email{
		To:      m.To,
		ToName:  m.Name,
		Subject: data.Subject,
		Text:    fmt.Sprintf("Your verification code is %s. It is valid for %d minutes.", m.Code, data.ExpiryMinutes),
		HTML:    html,
	}
	return n.submit(ctx, "otp_email", func(ctx context.Context) error {
		return n.mailer.Send(ctx, e)
	})
}

// SendOTPSMS sends a one-time code by SMS.
func (n *Notifier) SendOTPSMS(ctx context.Context, mobile, code string) error {
	m := SMS{
		To:   mobile,
		Code: code,
		Text: fmt.Sprintf("%s is your %s verification code. Do not share it with anyone.", code, n.productName),
	}
	return n.submit(ctx, "otp_sms", func(ctx context.Context) error {
		return n.sms.Send(ctx, m)
	})
}

// VerificationLink is an account verification email.
type VerificationLink struct {
	To         string
	Name       string
	TenantName string
	URL        string
	ValidFor   time.Duration
}

// SendVerificationLink sends the account verification email.
func (n *Notifier) SendVerificationLink(ctx context.Context, v VerificationLink) error {
	data := &EmailData{
		Subject:     fmt.Sprintf("Verify your %s account", n.productName),
		Preheader:   "Confirm your email address",
		ProductName: n.productName,
		Email:       v.To,
		Name:        v.Name,
		TenantName:  v.TenantName,
		Link:        v.URL,
		ExpiryHours: int(v.ValidFor / time.Hour),
	}
	html, err := n.renderer.Render(TemplateVerifyAccount, data)
	if err != nil {
		return err
	}
	e := Email{
		To:      v.To,
		ToName:  v.Name,
		Subject: data.Subject,
		Text:    fmt.Sprintf("Confirm your email address: %s", v.URL),
		HTML:    html,
	}
	return n.submit(ctx, "verification_link", func(ctx context.Context) error {
		return n.mailer.Send(ctx, e)
	})
}
