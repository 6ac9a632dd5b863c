package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/events"
	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/notify"
	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/otp/otptest"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/records/recordstest"
	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/session"
	"github.com/atelierhq/atelier/internal/signup"
	"github.com/atelierhq/atelier/internal/tenant"
)

// memUsers is an in-memory identity.UserRepository.
type memUsers struct {
	mu   sync.Mutex
	byID map[string]*identity.User
}

func (m *memUsers) Create(_ context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUsers) UpdateLockout(_ context.Context, userID string, failed int, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.FailedLoginAttempts, u.LockedUntil = failed, until
	}
	return nil
}

func (m *memUsers) MarkEmailVerified(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok && u.EmailVerifiedAt == nil {
		u.EmailVerifiedAt = &at
	}
	return nil
}

func (m *memUsers) SetSuperAdmin(_ context.Context, userID string, superAdmin, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.IsSuperAdmin, u.IsActive = superAdmin, active
	return nil
}

func (m *memUsers) ListSuperAdmins(_ context.Context) ([]*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.User
	for _, u := range m.byID {
		if u.IsSuperAdmin {
			out = append(out, u)
		}
	}
	return out, nil
}

// memSessions is an in-memory session.Repository.
type memSessions struct {
	mu sync.Mutex
	m  map[string]*session.Session
}

func (s *memSessions) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = sess
	return nil
}

func (s *memSessions) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[id]; ok {
		return sess, nil
	}
	return nil, session.ErrSessionNotFound
}

func (s *memSessions) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[id]; ok {
		sess.LastSeenAt = at
	}
	return nil
}

func (s *memSessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *memSessions) DeleteByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.m {
		if sess.UserID == userID {
			delete(s.m, id)
		}
	}
	return nil
}

func (s *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// memTenants backs the tenant, settings and subscription repositories and
// the bootstrap provisioner with one set of maps.
type memTenants struct {
	mu       sync.Mutex
	tenants  map[string]*tenant.Tenant
	settings map[string]*tenant.Setting
	subs     map[string]*tenant.Subscription
	plans    map[string]*tenant.Plan
	catalog  *recordstest.MemoryCatalog
}

func (m *memTenants) Create(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	return nil
}

func (m *memTenants) GetByID(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, tenant.ErrTenantNotFound
}

func (m *memTenants) GetBySubdomain(_ context.Context, sub string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Subdomain == sub {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (m *memTenants) Update(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memTenants) UpdateStatus(_ context.Context, id, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	t.Status, t.UpdatedAt = status, at
	return nil
}

func (m *memTenants) List(_ context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *memTenants) CountByStatus(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, t := range m.tenants {
		out[t.Status]++
	}
	return out, nil
}

type memSettings struct{ *memTenants }

func (m memSettings) Get(_ context.Context, s scope.Scope) (*tenant.Setting, error) {
	tid, ok := s.TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, found := m.settings[tid]; found {
		return st, nil
	}
	return nil, tenant.ErrSettingsNotFound
}

func (m memSettings) Update(_ context.Context, s scope.Scope, st *tenant.Setting) error {
	if err := s.Stamp(st); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[st.TenantID] = st
	return nil
}

type memSubs struct{ *memTenants }

func (m memSubs) Get(_ context.Context, s scope.Scope) (*tenant.Subscription, error) {
	tid, ok := s.TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, found := m.subs[tid]; found {
		return sub, nil
	}
	return nil, tenant.ErrSubscriptionNotFound
}

func (m memSubs) ExpireLapsed(context.Context, time.Time) (int64, error) { return 0, nil }

type memPlans struct{ *memTenants }

func (m memPlans) GetByID(_ context.Context, id string) (*tenant.Plan, error) {
	for _, p := range m.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, tenant.ErrPlanNotFound
}

func (m memPlans) GetBySlug(_ context.Context, slug string) (*tenant.Plan, error) {
	if p, ok := m.plans[slug]; ok {
		return p, nil
	}
	return nil, tenant.ErrPlanNotFound
}

type memUsage struct {
	customers *recordstest.MemoryStore[records.Customer, *records.Customer]
}

func (u memUsage) Usage(ctx context.Context, s scope.Scope) (tenant.Usage, error) {
	n, err := u.customers.Count(ctx, s)
	return tenant.Usage{Customers: n}, err
}

// memProvision writes straight into memTenants; tests here do not need rollback.
type memProvision struct{ *memTenants }

func (m memProvision) InTx(ctx context.Context, fn func(context.Context, tenant.ProvisionTx) error) error {
	return fn(ctx, m)
}

func (m memProvision) UpsertSettings(ctx context.Context, s scope.Scope, st *tenant.Setting) error {
	return memSettings(m).Update(ctx, s, st)
}

func (m memProvision) InsertMasterRecords(_ context.Context, s scope.Scope, recs []*records.MasterRecord) error {
	for _, r := range recs {
		if err := s.Stamp(r); err != nil {
			return err
		}
	}
	m.catalog.Master = append(m.catalog.Master, recs...)
	return nil
}

func (m memProvision) InsertWorkflowStages(_ context.Context, s scope.Scope, stages []*records.WorkflowStage) error {
	for _, r := range stages {
		if err := s.Stamp(r); err != nil {
			return err
		}
	}
	m.catalog.Stages = append(m.catalog.Stages, stages...)
	return nil
}

func (m memProvision) InsertSequences(_ context.Context, s scope.Scope, seqs []*records.NumberSequence) error {
	for _, r := range seqs {
		if err := s.Stamp(r); err != nil {
			return err
		}
	}
	m.catalog.Sequences = append(m.catalog.Sequences, seqs...)
	return nil
}

func (m memProvision) GetSubscription(ctx context.Context, s scope.Scope) (*tenant.Subscription, error) {
	return memSubs(m).Get(ctx, s)
}

func (m memProvision) GetPlanBySlug(ctx context.Context, slug string) (*tenant.Plan, error) {
	return memPlans(m).GetBySlug(ctx, slug)
}

func (m memProvision) CreateSubscription(_ context.Context, s scope.Scope, sub *tenant.Subscription) error {
	if err := s.Stamp(sub); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.TenantID] = sub
	return nil
}

// outbox captures codes and links instead of delivering them.
type outbox struct {
	mu    sync.Mutex
	codes map[string]string
	links []notify.VerificationLink
}

func (o *outbox) SendOTPEmail(_ context.Context, m otp.EmailMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes[m.To] = m.Code
	return nil
}

func (o *outbox) SendOTPSMS(context.Context, string, string) error { return nil }

func (o *outbox) SendVerificationLink(_ context.Context, v notify.VerificationLink) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, v)
	return nil
}

func (o *outbox) code(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[email]
}

// testEnv wires the real services over in-memory stores.
type testEnv struct {
	router   *chi.Mux
	handler  *Handler
	users    *memUsers
	store    *memTenants
	identity *identity.Service
	outbox   *outbox
}

func newTestEnv(t *testing.T, loginRequiresOTP bool) *testEnv {
	t.Helper()
	trial := 14
	store := &memTenants{
		tenants:  map[string]*tenant.Tenant{},
		settings: map[string]*tenant.Setting{},
		subs:     map[string]*tenant.Subscription{},
		plans: map[string]*tenant.Plan{
			tenant.PlanStarter: {ID: "11111111-1111-7111-8111-111111111111", Slug: tenant.PlanStarter, Name: "Starter",
				Price: decimal.NewFromInt(999), BillingCycle: "monthly", TrialDays: &trial, MaxCustomers: 100, IsActive: true},
		},
		catalog: &recordstest.MemoryCatalog{},
	}
	users := &memUsers{byID: map[string]*identity.User{}}
	box := &outbox{codes: map[string]string{}}

	idSvc := identity.NewService(users, identity.NewPasswordHasher(1024, 1, 1, 16, 32), audit.Nop{}, 5, time.Minute)
	sessSvc := session.NewService(&memSessions{m: map[string]*session.Session{}}, time.Hour, 30*time.Minute)

	customers := recordstest.NewMemoryStore[records.Customer, *records.Customer]()
	recSvc := records.NewService(
		customers,
		recordstest.NewMemoryStore[records.Order, *records.Order](),
		recordstest.NewMemoryStore[records.Worker, *records.Worker](),
		store.catalog, store.catalog,
	)

	bootstrap := tenant.NewBootstrapService(memProvision{store}, nil)
	tenantSvc := tenant.NewService(store, memSettings{store}, memSubs{store}, memPlans{store}, memUsage{customers},
		bootstrap, events.Noop{}, audit.Nop{})

	codes := otp.NewService(otptest.NewMemoryRepository(), box, nil, audit.Nop{}, otp.Options{})
	signupSvc := signup.NewService(tenantSvc, idSvc, codes, box, signup.NewLinkSigner("test-secret", 0), nil, "http://localhost:8080")

	h := NewHandler(Services{
		Identity: idSvc,
		Sessions: sessSvc,
		Tenants:  tenantSvc,
		Records:  recSvc,
		Signup:   signupSvc,
		Gate:     tenant.NewGate(store, memSubs{store}),
	}, nil, audit.Nop{}, SessionConfig{CookieName: "atelier_session", CookiePath: "/", CookieHTTPOnly: true}, loginRequiresOTP)

	return &testEnv{
		router:   NewRouter(h, RouterConfig{}),
		handler:  h,
		users:    users,
		store:    store,
		identity: idSvc,
		outbox:   box,
	}
}

// do sends a JSON request through the router with an optional session cookie.
func (e *testEnv) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "atelier_session" && c.Value != "" {
			return c
		}
	}
	return nil
}
