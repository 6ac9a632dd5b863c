package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/otp"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []Email
}

func (c *captureMailer) Send(_ context.Context, e Email) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, e)
	return nil
}

type captureSMS struct{ sent []SMS }

func (c *captureSMS) Send(_ context.Context, m SMS) error {
	c.sent = append(c.sent, m)
	return nil
}

func newTestNotifier(t *testing.T, d *Dispatcher) (*Notifier, *captureMailer, *captureSMS) {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	m, s := &captureMailer{}, &captureSMS{}
	return NewNotifier(r, m, s, d, "Atelier"), m, s
}

// TestPurpose: Validates the OTP email carries the product subject, the code and the validity window.
// Scope: Unit Test
// Expected: Subject "Your Atelier Verification Code"; text and HTML bodies mention the code and 10 minutes.
// Test Case ID: NTF-01
func TestNotifier_SendOTPEmail(t *testing.T) {
	n, mailer, _ := newTestNotifier(t, nil)

	err := n.SendOTPEmail(context.Background(), otp.EmailMessage{
		To: "owner@acme.test", Name: "Asha", TenantName: "Acme Tailors", Code: "042917", ValidFor: 10 * time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)

	e := mailer.sent[0]
	assert.Equal(t, "Your Atelier Verification Code", e.Subject)
	assert.Equal(t, "owner@acme.test", e.To)
	assert.Contains(t, e.Text, "042917")
	assert.Contains(t, e.Text, "10 minutes")
	assert.Contains(t, e.HTML, "042917")
	assert.Contains(t, e.HTML, "Acme Tailors")
	assert.Contains(t, e.HTML, "valid for 10 minutes")
}

func TestNotifier_SendOTPSMS(t *testing.T) {
	n, _, sms := newTestNotifier(t, nil)
	require.NoError(t, n.SendOTPSMS(context.Background(), "+919800000000", "123456"))
	require.Len(t, sms.sent, 1)
	assert.Equal(t, "123456", sms.sent[0].Code)
	assert.Contains(t, sms.sent[0].Text, "123456")
}

func TestNotifier_SendVerificationLink(t *testing.T) {
	n, mailer, _ := newTestNotifier(t, nil)
	err := n.SendVerificationLink(context.Background(), VerificationLink{
		To: "owner@acme.test", URL: "https://app.example.com/verify?token=abc", ValidFor: 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].HTML, "https://app.example.com/verify?token=abc")
	assert.Contains(t, mailer.sent[0].HTML, "24 hours")
}

// TestPurpose: Validates that queued jobs run off the caller and failures do not propagate.
// Scope: Unit Test
// Expected: All successful jobs run before Close returns; a failing job is only logged; Enqueue after Close fails.
// Test Case ID: NTF-02
func TestDispatcher_RunsJobs(t *testing.T) {
	d := NewDispatcher(2, 16, time.Second)
	var ran atomic.Int32

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(Job{Kind: "test", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}
	require.NoError(t, d.Enqueue(Job{Kind: "test", Run: func(context.Context) error {
		return errors.New("provider down")
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, int32(5), ran.Load())

	assert.ErrorIs(t, d.Enqueue(Job{Run: func(context.Context) error { return nil }}), ErrDispatcherClosed)
}

// TestPurpose: Validates the HTTP gateway request format and the circuit breaker.
// Scope: Unit Test
// Expected: A JSON POST with bearer token; after five consecutive failures calls are short-circuited.
// Test Case ID: NTF-03
func TestGatewaySMSSender(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := NewGatewaySMSSender(GatewayConfig{URL: srv.URL, APIToken: "tok", SenderID: "ATELIR"})
	require.NoError(t, g.Send(context.Background(), SMS{To: "+91", Text: "hi"}))

	fail.Store(true)
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, g.Send(context.Background(), SMS{To: "+91", Text: "hi"}), ErrGatewayRejected)
	}
	before := calls.Load()
	assert.Error(t, g.Send(context.Background(), SMS{To: "+91", Text: "hi"}))
	assert.Equal(t, before, calls.Load(), "open breaker does not call the gateway")
}
