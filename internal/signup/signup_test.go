package signup

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/notify"
	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/otp/otptest"
	"github.com/atelierhq/atelier/internal/tenant"
	"github.com/atelierhq/atelier/internal/validate"
)

type mockTenants struct{ mock.Mock }

func (m *mockTenants) SubdomainAvailable(ctx context.Context, sub string) (bool, error) {
	args := m.Called(ctx, sub)
	return args.Bool(0), args.Error(1)
}

func (m *mockTenants) CreateTenant(ctx context.Context, name, sub, email string) (*tenant.Tenant, error) {
	args := m.Called(ctx, name, sub, email)
	if t := args.Get(0); t != nil {
		return t.(*tenant.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTenants) Bootstrap(ctx context.Context, actorID, tenantID string) error {
	return m.Called(ctx, actorID, tenantID).Error(0)
}

func (m *mockTenants) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	args := m.Called(ctx, id)
	if t := args.Get(0); t != nil {
		return t.(*tenant.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) EmailAvailable(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUsers) Register(ctx context.Context, in identity.RegisterInput) (*identity.User, error) {
	args := m.Called(ctx, in)
	if u := args.Get(0); u != nil {
		return u.(*identity.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) GetUser(ctx context.Context, id string) (*identity.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*identity.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*identity.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) MarkEmailVerified(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type outbox struct {
	mu    sync.Mutex
	email []otp.EmailMessage
	sms   []string
	links []notify.VerificationLink
}

func (o *outbox) SendOTPEmail(_ context.Context, m otp.EmailMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.email = append(o.email, m)
	return nil
}

func (o *outbox) SendOTPSMS(_ context.Context, mobile, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sms = append(o.sms, mobile)
	return nil
}

func (o *outbox) SendVerificationLink(_ context.Context, v notify.VerificationLink) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, v)
	return nil
}

type fixture struct {
	svc     *Service
	tenants *mockTenants
	users   *mockUsers
	box     *outbox
	codes   *otptest.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{tenants: &mockTenants{}, users: &mockUsers{}, box: &outbox{}, codes: otptest.NewMemoryRepository()}
	codes := otp.NewService(f.codes, f.box, nil, audit.Nop{}, otp.Options{})
	f.svc = NewService(f.tenants, f.users, codes, f.box, NewLinkSigner("test-secret", 24*time.Hour), nil, "https://app.atelier.test/")
	return f
}

func strPtr(s string) *string { return &s }

func validRequest() Request {
	return Request{
		BusinessName: " Acme Tailors ",
		Subdomain:    "Acme",
		Name:         "Asha",
		Email:        "Owner@Acme.test",
		Mobile:       "+919800000000",
		Password:     "correct-horse",
	}
}

// TestPurpose: Validates the full signup path from validation to code and link delivery.
// Scope: Unit Test
// Expected: Tenant then user then bootstrap; a pending registration code for the tenant; email, SMS and link sent.
// Test Case ID: SGN-01
func TestService_Signup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := &tenant.Tenant{ID: "T1", Name: "Acme Tailors", Subdomain: "acme", Status: tenant.StatusTrial}
	user := &identity.User{ID: "U1", TenantID: strPtr("T1"), Name: "Asha", Email: "owner@acme.test", Mobile: "+919800000000"}

	f.tenants.On("SubdomainAvailable", mock.Anything, "acme").Return(true, nil)
	f.users.On("EmailAvailable", mock.Anything, "owner@acme.test").Return(true, nil)
	f.tenants.On("CreateTenant", mock.Anything, "Acme Tailors", "acme", "owner@acme.test").Return(acme, nil)
	f.users.On("Register", mock.Anything, identity.RegisterInput{
		TenantID: "T1", Name: "Asha", Email: "owner@acme.test", Mobile: "+919800000000", Password: "correct-horse",
	}).Return(user, nil)
	f.tenants.On("Bootstrap", mock.Anything, "U1", "T1").Return(nil)

	res, err := f.svc.Signup(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "T1", res.Tenant.ID)
	assert.False(t, res.OTPExpiresAt.IsZero())

	rows := f.codes.All()
	require.Len(t, rows, 1)
	assert.Equal(t, "T1", rows[0].TenantID)
	assert.Equal(t, otp.PurposeRegistration, rows[0].Purpose)
	assert.Equal(t, "U1", *rows[0].UserID)

	require.Len(t, f.box.email, 1)
	assert.Equal(t, rows[0].Code, f.box.email[0].Code)
	assert.Equal(t, "Acme Tailors", f.box.email[0].TenantName)
	assert.Equal(t, []string{"+919800000000"}, f.box.sms)

	require.Len(t, f.box.links, 1)
	link, err := url.Parse(f.box.links[0].URL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/auth/verify-email", link.Path)
	assert.True(t, strings.HasPrefix(f.box.links[0].URL, "https://app.atelier.test/api"))

	f.tenants.AssertExpectations(t)
	f.users.AssertExpectations(t)
}

// TestPurpose: Validates that invalid or duplicate signup input writes nothing.
// Scope: Unit Test
// Expected: Field errors, taken subdomain and taken email fail before CreateTenant is called.
// Test Case ID: SGN-02
func TestService_Signup_RejectsBeforeWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("field errors", func(t *testing.T) {
		f := newFixture(t)
		req := validRequest()
		req.Email = "not-an-email"
		req.Password = "short"
		_, err := f.svc.Signup(ctx, req)
		var fe validate.FieldErrors
		require.True(t, errors.As(err, &fe))
		assert.Contains(t, fe, "email")
		assert.Contains(t, fe, "password")
		f.tenants.AssertNotCalled(t, "CreateTenant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("subdomain taken", func(t *testing.T) {
		f := newFixture(t)
		f.tenants.On("SubdomainAvailable", mock.Anything, "acme").Return(false, nil)
		_, err := f.svc.Signup(ctx, validRequest())
		assert.ErrorIs(t, err, tenant.ErrSubdomainTaken)
		f.tenants.AssertNotCalled(t, "CreateTenant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reserved subdomain", func(t *testing.T) {
		f := newFixture(t)
		f.tenants.On("SubdomainAvailable", mock.Anything, "admin").Return(false, tenant.ErrReservedSubdomain)
		req := validRequest()
		req.Subdomain = "admin"
		_, err := f.svc.Signup(ctx, req)
		assert.ErrorIs(t, err, tenant.ErrReservedSubdomain)
	})

	t.Run("email taken", func(t *testing.T) {
		f := newFixture(t)
		f.tenants.On("SubdomainAvailable", mock.Anything, "acme").Return(true, nil)
		f.users.On("EmailAvailable", mock.Anything, "owner@acme.test").Return(false, nil)
		_, err := f.svc.Signup(ctx, validRequest())
		assert.ErrorIs(t, err, identity.ErrUserAlreadyExists)
		f.tenants.AssertNotCalled(t, "CreateTenant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

// TestPurpose: Validates that a bootstrap failure is surfaced and no code is sent.
// Scope: Unit Test
// Expected: ErrBootstrapFailed; no OTP rows; no email.
// Test Case ID: SGN-03
func TestService_Signup_BootstrapFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := &tenant.Tenant{ID: "T1", Name: "Acme Tailors", Subdomain: "acme"}

	f.tenants.On("SubdomainAvailable", mock.Anything, "acme").Return(true, nil)
	f.users.On("EmailAvailable", mock.Anything, "owner@acme.test").Return(true, nil)
	f.tenants.On("CreateTenant", mock.Anything, "Acme Tailors", "acme", "owner@acme.test").Return(acme, nil)
	f.users.On("Register", mock.Anything, mock.Anything).Return(&identity.User{ID: "U1", TenantID: strPtr("T1")}, nil)
	f.tenants.On("Bootstrap", mock.Anything, "U1", "T1").Return(errors.New("db down"))

	_, err := f.svc.Signup(ctx, validRequest())
	assert.ErrorIs(t, err, ErrBootstrapFailed)
	assert.Empty(t, f.codes.All())
	assert.Empty(t, f.box.email)
}

// TestPurpose: Validates OTP verification through the member lookup.
// Scope: Unit Test
// Security: A code can only be verified for a member of the named tenant.
// Expected: Wrong tenant is not_found without touching codes; registration success marks the email verified.
// Test Case ID: SGN-04
func TestService_VerifyOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := &identity.User{ID: "U1", TenantID: strPtr("T1"), Email: "owner@acme.test"}
	f.users.On("GetByEmail", mock.Anything, "owner@acme.test").Return(user, nil)
	f.users.On("MarkEmailVerified", mock.Anything, "U1").Return(nil)
	f.tenants.On("GetTenant", mock.Anything, "T1").Return(&tenant.Tenant{ID: "T1", Name: "Acme"}, nil)

	rec, err := f.svc.IssueLoginOTP(ctx, user)
	require.NoError(t, err)

	_, res, err := f.svc.VerifyOTP(ctx, "T2", "owner@acme.test", otp.PurposeLogin, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, otp.ResultNotFound, res)

	_, res, err = f.svc.VerifyOTP(ctx, "T1", "owner@acme.test", otp.PurposeLogin, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, otp.ResultOK, res)
	f.users.AssertNotCalled(t, "MarkEmailVerified", mock.Anything, "U1")

	reg, err := f.svc.ResendOTP(ctx, "T1", "owner@acme.test", otp.PurposeRegistration)
	require.NoError(t, err)
	got, res, err := f.svc.VerifyOTP(ctx, "T1", "owner@acme.test", otp.PurposeRegistration, reg.Code)
	require.NoError(t, err)
	assert.Equal(t, otp.ResultOK, res)
	assert.Equal(t, "U1", got.ID)
	f.users.AssertCalled(t, "MarkEmailVerified", mock.Anything, "U1")
}

// TestPurpose: Validates that one member cannot spend a login code issued to another member of the same tenant.
// Scope: Unit Test
// Security: A code submitted under the wrong email must not be consumed.
// Expected: The owner's code under a colleague's email is invalid; the owner then verifies with the same code.
// Test Case ID: SGN-06
func TestService_VerifyOTP_OtherMemberLeavesCodePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := &identity.User{ID: "U1", TenantID: strPtr("T1"), Email: "owner@acme.test"}
	cutter := &identity.User{ID: "U2", TenantID: strPtr("T1"), Email: "cutter@acme.test"}
	f.users.On("GetByEmail", mock.Anything, "owner@acme.test").Return(owner, nil)
	f.users.On("GetByEmail", mock.Anything, "cutter@acme.test").Return(cutter, nil)
	f.tenants.On("GetTenant", mock.Anything, "T1").Return(&tenant.Tenant{ID: "T1", Name: "Acme"}, nil)

	rec, err := f.svc.IssueLoginOTP(ctx, owner)
	require.NoError(t, err)

	u, res, err := f.svc.VerifyOTP(ctx, "T1", "cutter@acme.test", otp.PurposeLogin, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, otp.ResultInvalid, res)
	assert.Nil(t, u)

	rows := f.codes.All()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsPending())

	u, res, err = f.svc.VerifyOTP(ctx, "T1", "owner@acme.test", otp.PurposeLogin, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, otp.ResultOK, res)
	assert.Equal(t, "U1", u.ID)
}

// TestPurpose: Validates verification links.
// Scope: Unit Test
// Security: Tampered, expired and cross-tenant tokens are rejected.
// Expected: A fresh token verifies the email; altered or expired tokens return ErrInvalidLink.
// Test Case ID: SGN-05
func TestService_VerifyEmailToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.users.On("GetUser", mock.Anything, "U1").Return(&identity.User{ID: "U1", TenantID: strPtr("T1")}, nil)
	f.users.On("MarkEmailVerified", mock.Anything, "U1").Return(nil)

	token, err := f.svc.signer.Sign("U1", "T1")
	require.NoError(t, err)
	u, err := f.svc.VerifyEmailToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "U1", u.ID)

	_, err = f.svc.VerifyEmailToken(ctx, token+"x")
	assert.ErrorIs(t, err, ErrInvalidLink)

	other, err := f.svc.signer.Sign("U1", "T9")
	require.NoError(t, err)
	_, err = f.svc.VerifyEmailToken(ctx, other)
	assert.ErrorIs(t, err, ErrInvalidLink)

	f.svc.signer.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	stale, err := f.svc.signer.Sign("U1", "T1")
	require.NoError(t, err)
	f.svc.signer.now = time.Now
	_, err = f.svc.VerifyEmailToken(ctx, stale)
	assert.ErrorIs(t, err, ErrInvalidLink)
}
