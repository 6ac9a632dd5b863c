package tenant

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

var errInjected = errors.New("injected failure")

type memState struct {
	settings map[string]*Setting
	master   []*records.MasterRecord
	stages   []*records.WorkflowStage
	seqs     []*records.NumberSequence
	subs     map[string]*Subscription
}

func (s memState) clone() memState {
	return memState{
		settings: maps.Clone(s.settings),
		master:   slices.Clone(s.master),
		stages:   slices.Clone(s.stages),
		seqs:     slices.Clone(s.seqs),
		subs:     maps.Clone(s.subs),
	}
}

// memProvisioner commits a copy of its state only when fn succeeds.
type memProvisioner struct {
	committed memState
	plans     map[string]*Plan
	failOn    string
}

func newMemProvisioner(plans ...*Plan) *memProvisioner {
	p := &memProvisioner{
		committed: memState{settings: map[string]*Setting{}, subs: map[string]*Subscription{}},
		plans:     map[string]*Plan{},
	}
	for _, pl := range plans {
		p.plans[pl.Slug] = pl
	}
	return p
}

func (p *memProvisioner) InTx(ctx context.Context, fn func(context.Context, ProvisionTx) error) error {
	tx := &memTx{p: p, st: p.committed.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	p.committed = tx.st
	return nil
}

func (p *memProvisioner) masterFor(tenantID string) []*records.MasterRecord {
	return scope.Filter(scope.ForTenant(tenantID), p.committed.master)
}

type memTx struct {
	p  *memProvisioner
	st memState
}

func (t *memTx) fail(step string) error {
	if t.p.failOn == step {
		return errInjected
	}
	return nil
}

func (t *memTx) UpsertSettings(_ context.Context, s scope.Scope, st *Setting) error {
	if err := t.fail("settings"); err != nil {
		return err
	}
	if err := s.Stamp(st); err != nil {
		return err
	}
	t.st.settings[st.TenantID] = st
	return nil
}

func (t *memTx) InsertMasterRecords(_ context.Context, s scope.Scope, recs []*records.MasterRecord) error {
	if err := t.fail("master"); err != nil {
		return err
	}
	for _, r := range recs {
		if err := s.Stamp(r); err != nil {
			return err
		}
		dup := slices.ContainsFunc(t.st.master, func(m *records.MasterRecord) bool {
			return m.TenantID == r.TenantID && m.Category == r.Category && m.Name == r.Name
		})
		if !dup {
			t.st.master = append(t.st.master, r)
		}
	}
	return nil
}

func (t *memTx) InsertWorkflowStages(_ context.Context, s scope.Scope, stages []*records.WorkflowStage) error {
	if err := t.fail("stages"); err != nil {
		return err
	}
	for _, st := range stages {
		if err := s.Stamp(st); err != nil {
			return err
		}
		dup := slices.ContainsFunc(t.st.stages, func(w *records.WorkflowStage) bool {
			return w.TenantID == st.TenantID && w.Name == st.Name
		})
		if !dup {
			t.st.stages = append(t.st.stages, st)
		}
	}
	return nil
}

func (t *memTx) InsertSequences(_ context.Context, s scope.Scope, seqs []*records.NumberSequence) error {
	if err := t.fail("sequences"); err != nil {
		return err
	}
	for _, q := range seqs {
		if err := s.Stamp(q); err != nil {
			return err
		}
		dup := slices.ContainsFunc(t.st.seqs, func(n *records.NumberSequence) bool {
			return n.TenantID == q.TenantID && n.DocumentType == q.DocumentType
		})
		if !dup {
			t.st.seqs = append(t.st.seqs, q)
		}
	}
	return nil
}

func (t *memTx) GetSubscription(_ context.Context, s scope.Scope) (*Subscription, error) {
	tid, ok := s.TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	if sub, found := t.st.subs[tid]; found {
		return sub, nil
	}
	return nil, ErrSubscriptionNotFound
}

func (t *memTx) GetPlanBySlug(_ context.Context, slug string) (*Plan, error) {
	if p, ok := t.p.plans[slug]; ok {
		return p, nil
	}
	return nil, ErrPlanNotFound
}

func (t *memTx) CreateSubscription(_ context.Context, s scope.Scope, sub *Subscription) error {
	if err := t.fail("subscription"); err != nil {
		return err
	}
	if err := s.Stamp(sub); err != nil {
		return err
	}
	t.st.subs[sub.TenantID] = sub
	return nil
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	args := m.Called(ctx, id, status, at)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*Tenant), args.Error(1)
}

func (m *mockRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]int), args.Error(1)
}

type mockSubs struct {
	mock.Mock
}

func (m *mockSubs) Get(ctx context.Context, s scope.Scope) (*Subscription, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *mockSubs) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}
