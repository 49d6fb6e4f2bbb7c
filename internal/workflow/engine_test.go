package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xela07ax/ownership-console/internal/domain"
)

type engineFixture struct {
	engine   *Engine
	store    *memStore
	ledger   *memLedger
	registry *memRegistry
	notifier *memNotifier
}

func defaultDirectory() *memDirectory {
	return &memDirectory{users: map[string]*domain.User{
		"alice": {ID: "alice", TeamIDs: []string{"team-a"}, ManagerID: "mgr-7", Roles: []string{"ENGINEER"}},
		"carol": {ID: "carol", TeamIDs: []string{"team-a"}, ManagerID: "mgr-7", Roles: []string{"ENGINEER"}},
		"bob":   {ID: "bob", TeamIDs: []string{"team-b"}, ManagerID: "mgr-9", Roles: []string{"ENGINEER"}},
	}}
}

func newFixture(gates []domain.GateRequirement) *engineFixture {
	f := &engineFixture{
		store:    newMemStore(),
		ledger:   &memLedger{},
		registry: newMemRegistry(),
		notifier: &memNotifier{},
	}
	f.engine = NewEngine(Deps{
		Requests:  f.store,
		Ledger:    f.ledger,
		Directory: defaultDirectory(),
		Registry:  f.registry,
		Gates:     fixedGates{gates: gates},
		Notifier:  f.notifier,
	}, Config{ConflictAttempts: 3, ConflictDelay: time.Millisecond})
	return f
}

// newFixtureWithStore — то же, но с подмененным хранилищем заявок
// (для воспроизведения гонок со stale-чтением)
func newFixtureWithStore(gates []domain.GateRequirement, store RequestStore, base *engineFixture) *engineFixture {
	f := &engineFixture{
		store:    base.store,
		ledger:   base.ledger,
		registry: base.registry,
		notifier: base.notifier,
	}
	f.engine = NewEngine(Deps{
		Requests:  store,
		Ledger:    f.ledger,
		Directory: defaultDirectory(),
		Registry:  f.registry,
		Gates:     fixedGates{gates: gates},
		Notifier:  f.notifier,
	}, Config{ConflictAttempts: 3, ConflictDelay: time.Millisecond})
	return f
}

var (
	adminIdentity   = domain.Identity{UserID: "admin-1", Roles: []string{domain.RoleSysAdmin}}
	managerIdentity = domain.Identity{UserID: "mgr-7"}

	singleAdminGate = []domain.GateRequirement{{Gate: domain.GateSysAdmin, MinApprovals: 1}}
	bothGates       = []domain.GateRequirement{
		{Gate: domain.GateSysAdmin, MinApprovals: 1},
		{Gate: domain.GateLineManager, MinApprovals: 1},
	}
)

func mustCreate(t *testing.T, f *engineFixture, requester, serviceID, teamID string) *domain.TransferRequest {
	t.Helper()
	req, err := f.engine.CreateRequest(context.Background(), requester, domain.TransferTarget{ServiceID: serviceID, TeamID: teamID}, nil)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return req
}

func TestCreateRequestFreezesSnapshot(t *testing.T) {
	f := newFixture(bothGates)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	if req.Status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING", req.Status)
	}
	if req.Version != 0 {
		t.Errorf("version = %d, want 0", req.Version)
	}
	if req.RequesterSnapshot.ManagerID != "mgr-7" {
		t.Errorf("snapshot manager = %q, want mgr-7", req.RequesterSnapshot.ManagerID)
	}
	if len(req.RequiredGates) != 2 {
		t.Fatalf("required gates = %d, want 2", len(req.RequiredGates))
	}
	for _, g := range req.RequiredGates {
		if tally, ok := req.Counts[g.Gate]; !ok || tally.Approvals != 0 || tally.Rejections != 0 {
			t.Errorf("gate %s: counts not initialized to zero", g.Gate)
		}
	}
}

func TestCreateRequestUnknownRequester(t *testing.T) {
	f := newFixture(singleAdminGate)
	_, err := f.engine.CreateRequest(context.Background(), "ghost", domain.TransferTarget{ServiceID: "svc-1", TeamID: "team-a"}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitDecisionApproves(t *testing.T) {
	f := newFixture(singleAdminGate)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	final, cascade, err := f.engine.SubmitDecision(context.Background(), req.ID, adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil)
	if err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if final.Status != domain.StatusApproved {
		t.Errorf("status = %s, want APPROVED", final.Status)
	}
	if final.Version != 1 {
		t.Errorf("version = %d, want 1", final.Version)
	}
	if cascade == nil {
		t.Fatal("cascade result is nil after approval")
	}
	if cascade.AutoApproved != 0 || cascade.AutoRejected != 0 {
		t.Errorf("cascade = %+v, want zero counts without siblings", cascade)
	}
	if f.registry.Calls() != 1 {
		t.Errorf("registry writes = %d, want 1", f.registry.Calls())
	}
	if owner := f.registry.lastOwner["svc-1"]; owner != "team-a" {
		t.Errorf("owner = %q, want team-a", owner)
	}
	if f.notifier.CountFor(req.ID) != 1 {
		t.Errorf("notifications = %d, want 1", f.notifier.CountFor(req.ID))
	}
}

func TestSubmitDecisionQuorumProgression(t *testing.T) {
	f := newFixture(bothGates)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	mid, cascade, err := f.engine.SubmitDecision(context.Background(), req.ID, adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil)
	if err != nil {
		t.Fatalf("first decision: %v", err)
	}
	if mid.Status != domain.StatusPending {
		t.Errorf("after one gate: status = %s, want PENDING", mid.Status)
	}
	if mid.Version != 1 {
		t.Errorf("after one gate: version = %d, want 1", mid.Version)
	}
	if got := mid.Counts[domain.GateSysAdmin].Approvals; got != 1 {
		t.Errorf("sysadmin approvals = %d, want 1", got)
	}
	if cascade != nil {
		t.Error("cascade must not run while pending")
	}
	if f.registry.Calls() != 0 {
		t.Errorf("registry writes = %d, want 0 while pending", f.registry.Calls())
	}

	final, _, err := f.engine.SubmitDecision(context.Background(), req.ID, managerIdentity, domain.GateLineManager, domain.DecisionApprove, nil)
	if err != nil {
		t.Fatalf("second decision: %v", err)
	}
	if final.Status != domain.StatusApproved {
		t.Errorf("final status = %s, want APPROVED", final.Status)
	}
	if final.Version != 2 {
		t.Errorf("final version = %d, want 2", final.Version)
	}
}

func TestSubmitDecisionRejectVetoes(t *testing.T) {
	f := newFixture(bothGates)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	reason := "out of scope"
	final, cascade, err := f.engine.SubmitDecision(context.Background(), req.ID, managerIdentity, domain.GateLineManager, domain.DecisionReject, &reason)
	if err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if final.Status != domain.StatusRejected {
		t.Errorf("status = %s, want REJECTED", final.Status)
	}
	if cascade != nil {
		t.Error("cascade must not run on rejection")
	}
	if f.registry.Calls() != 0 {
		t.Errorf("registry writes = %d, want 0", f.registry.Calls())
	}
	if f.notifier.CountFor(req.ID) != 1 {
		t.Errorf("notifications = %d, want 1", f.notifier.CountFor(req.ID))
	}
}

func TestSubmitDecisionErrors(t *testing.T) {
	tests := []struct {
		name     string
		gate     domain.Gate
		identity domain.Identity
		wantErr  error
	}{
		{
			name:     "gate outside contract",
			gate:     domain.GateLineManager,
			identity: managerIdentity,
			wantErr:  ErrUnknownGate,
		},
		{
			name:     "approver without role",
			gate:     domain.GateSysAdmin,
			identity: domain.Identity{UserID: "bob", Roles: []string{"ENGINEER"}},
			wantErr:  ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(singleAdminGate)
			req := mustCreate(t, f, "alice", "svc-1", "team-a")

			_, _, err := f.engine.SubmitDecision(context.Background(), req.ID, tt.identity, tt.gate, domain.DecisionApprove, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(f.ledger.decisions) != 0 {
				t.Errorf("ledger rows = %d, want 0 after rejected submission", len(f.ledger.decisions))
			}
		})
	}
}

func TestSubmitDecisionMissingRequest(t *testing.T) {
	f := newFixture(singleAdminGate)
	_, _, err := f.engine.SubmitDecision(context.Background(), "no-such-id", adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitDecisionDuplicate(t *testing.T) {
	f := newFixture([]domain.GateRequirement{{Gate: domain.GateSysAdmin, MinApprovals: 2}})
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	if _, _, err := f.engine.SubmitDecision(context.Background(), req.ID, adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	_, _, err := f.engine.SubmitDecision(context.Background(), req.ID, adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil)
	if !errors.Is(err, ErrDuplicateDecision) {
		t.Fatalf("err = %v, want ErrDuplicateDecision", err)
	}
	if len(f.ledger.decisions) != 1 {
		t.Errorf("ledger rows = %d, want 1 (duplicate never appended)", len(f.ledger.decisions))
	}
}

func TestSubmitDecisionAfterCancel(t *testing.T) {
	f := newFixture(singleAdminGate)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	if _, err := f.engine.Cancel(context.Background(), req.ID, "alice", "changed plans"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, _, err := f.engine.SubmitDecision(context.Background(), req.ID, adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil)
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(singleAdminGate)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	final, err := f.engine.Cancel(context.Background(), req.ID, "alice", "changed plans")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if final.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", final.Status)
	}
	if final.Version != 1 {
		t.Errorf("version = %d, want 1", final.Version)
	}
	if final.CancelReason == nil || *final.CancelReason != "changed plans" {
		t.Errorf("cancel reason = %v, want %q", final.CancelReason, "changed plans")
	}
	if f.notifier.CountFor(req.ID) != 1 {
		t.Errorf("notifications = %d, want 1", f.notifier.CountFor(req.ID))
	}
}

func TestCancelByNonRequester(t *testing.T) {
	f := newFixture(singleAdminGate)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	_, err := f.engine.Cancel(context.Background(), req.ID, "bob", "not mine")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCancelAfterFinalized(t *testing.T) {
	f := newFixture(singleAdminGate)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	if _, _, err := f.engine.SubmitDecision(context.Background(), req.ID, adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := f.engine.Cancel(context.Background(), req.ID, "alice", "too late")
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
}

// staleOnceStore подсовывает один раз устаревшую копию заявки при чтении,
// имитируя гонку "прочитал до чужого терминального перехода"
type staleOnceStore struct {
	*memStore
	mu    sync.Mutex
	stale *domain.TransferRequest
}

func (s *staleOnceStore) GetByID(ctx context.Context, id string) (*domain.TransferRequest, error) {
	s.mu.Lock()
	if s.stale != nil && s.stale.ID == id {
		st := s.stale
		s.stale = nil
		s.mu.Unlock()
		return cloneRequest(st), nil
	}
	s.mu.Unlock()
	return s.memStore.GetByID(ctx, id)
}

func TestSubmitDecisionConflictWhenFinalizedMidFlight(t *testing.T) {
	base := newFixture(singleAdminGate)
	req := mustCreate(t, base, "alice", "svc-1", "team-a")

	stale, err := base.store.GetByID(context.Background(), req.ID)
	if err != nil || stale == nil {
		t.Fatalf("snapshot read: %v", err)
	}
	if _, err := base.engine.Cancel(context.Background(), req.ID, "alice", "changed plans"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	wrapped := &staleOnceStore{memStore: base.store, stale: stale}
	f := newFixtureWithStore(singleAdminGate, wrapped, base)

	_, _, err = f.engine.SubmitDecision(context.Background(), req.ID, adminIdentity, domain.GateSysAdmin, domain.DecisionApprove, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Голос остался в журнале, но исход определил отзыв
	if len(base.ledger.decisions) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(base.ledger.decisions))
	}
	cur, _ := base.store.GetByID(context.Background(), req.ID)
	if cur.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED preserved", cur.Status)
	}
	if base.registry.Calls() != 0 {
		t.Errorf("registry writes = %d, want 0", base.registry.Calls())
	}
}

func TestConcurrentSubmissionsFinalizeOnce(t *testing.T) {
	f := newFixture(singleAdminGate)
	req := mustCreate(t, f, "alice", "svc-1", "team-a")

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := domain.Identity{
				UserID: "admin-" + string(rune('a'+n)),
				Roles:  []string{domain.RoleSysAdmin},
			}
			_, _, errs[n] = f.engine.SubmitDecision(context.Background(), req.ID, id, domain.GateSysAdmin, domain.DecisionApprove, nil)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyFinalized):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("successful submissions = %d, want exactly 1", winners)
	}
	if f.registry.Calls() != 1 {
		t.Errorf("registry writes = %d, want exactly 1", f.registry.Calls())
	}
	if f.notifier.CountFor(req.ID) != 1 {
		t.Errorf("notifications = %d, want exactly 1", f.notifier.CountFor(req.ID))
	}

	final, _ := f.store.GetByID(context.Background(), req.ID)
	if final.Status != domain.StatusApproved {
		t.Errorf("status = %s, want APPROVED", final.Status)
	}
	if final.Version != 1 {
		t.Errorf("version = %d, want 1 (single winning transition)", final.Version)
	}
}
