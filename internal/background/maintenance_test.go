package background

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/audit"
)

type mockSessions struct{ mock.Mock }

func (m *mockSessions) CleanupExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockSubs struct{ mock.Mock }

func (m *mockSubs) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Log(ctx context.Context, e audit.Event) { m.Called(ctx, e) }

// TestPurpose: Validates one maintenance sweep.
// Scope: Unit Test
// Expected: Sessions are cleaned, lapsed subscriptions expire at the injected time and an audit event records the count.
// Test Case ID: BG-01
func TestMaintenance_RunOnce(t *testing.T) {
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	sessions, subs, aud := &mockSessions{}, &mockSubs{}, &mockAudit{}
	sessions.On("CleanupExpired", mock.Anything).Return(int64(4), nil)
	subs.On("ExpireLapsed", mock.Anything, at).Return(int64(2), nil)
	aud.On("Log", mock.Anything, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeSubscriptionExpired && e.Metadata["count"] == int64(2)
	})).Return()

	m := NewMaintenance(sessions, subs, aud)
	m.now = func() time.Time { return at }

	rep, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{SessionsDeleted: 4, SubscriptionsExpired: 2}, rep)
	aud.AssertExpectations(t)
}

// TestPurpose: Validates that a failing step does not stop the sweep.
// Scope: Unit Test
// Expected: Subscription expiry still runs after session cleanup fails and the error is returned.
// Test Case ID: BG-02
func TestMaintenance_RunOnce_ContinuesOnError(t *testing.T) {
	sessions, subs := &mockSessions{}, &mockSubs{}
	sessions.On("CleanupExpired", mock.Anything).Return(int64(0), errors.New("db down"))
	subs.On("ExpireLapsed", mock.Anything, mock.Anything).Return(int64(0), nil)

	m := NewMaintenance(sessions, subs, audit.Nop{})
	rep, err := m.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, rep.SubscriptionsExpired)
	subs.AssertExpectations(t)
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := NewScheduler(NewMaintenance(&mockSessions{}, &mockSubs{}, audit.Nop{}), "every now and then")
	assert.Error(t, s.Start())

	ok := NewScheduler(NewMaintenance(&mockSessions{}, &mockSubs{}, audit.Nop{}), "")
	require.NoError(t, ok.Start())
	ok.Stop(context.Background())
}
