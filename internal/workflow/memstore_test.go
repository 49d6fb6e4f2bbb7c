package workflow

import (
	"context"
	"sync"

	"github.com/xela07ax/ownership-console/internal/domain"
)

// Фейки хранилищ для тестов ядра: mutex вместо Postgres,
// но с тем же контрактом условной записи по версии.

type memStore struct {
	mu   sync.Mutex
	reqs map[string]*domain.TransferRequest
}

func newMemStore() *memStore {
	return &memStore{reqs: make(map[string]*domain.TransferRequest)}
}

func cloneRequest(t *domain.TransferRequest) *domain.TransferRequest {
	cp := *t
	cp.RequiredGates = append([]domain.GateRequirement(nil), t.RequiredGates...)
	cp.Counts = make(map[domain.Gate]domain.GateTally, len(t.Counts))
	for g, tally := range t.Counts {
		cp.Counts[g] = tally
	}
	return &cp
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[id]
	if !ok {
		return nil, nil
	}
	return cloneRequest(req), nil
}

func (s *memStore) Create(ctx context.Context, req *domain.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.ID] = cloneRequest(req)
	return nil
}

func (s *memStore) UpdateIfVersion(ctx context.Context, id string, expectedVersion int64, status domain.TransferStatus, counts map[domain.Gate]domain.GateTally, cancelReason *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reqs[id]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	cur.Status = status
	cur.Version++
	cur.Counts = make(map[domain.Gate]domain.GateTally, len(counts))
	for g, tally := range counts {
		cur.Counts[g] = tally
	}
	if cancelReason != nil {
		reason := *cancelReason
		cur.CancelReason = &reason
	}
	return true, nil
}

func (s *memStore) ListPendingForService(ctx context.Context, serviceID, excludeID string) ([]*domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TransferRequest
	for _, req := range s.reqs {
		if req.Target.ServiceID == serviceID && req.Status == domain.StatusPending && req.ID != excludeID {
			out = append(out, cloneRequest(req))
		}
	}
	return out, nil
}

type memLedger struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func (l *memLedger) Append(ctx context.Context, d *domain.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, *d)
	return nil
}

func (l *memLedger) ListByRequest(ctx context.Context, requestID string) ([]domain.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Decision
	for _, d := range l.decisions {
		if d.RequestID == requestID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l *memLedger) CountForGateByApprover(ctx context.Context, requestID string, gate domain.Gate, approverUserID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, d := range l.decisions {
		if d.RequestID == requestID && d.Gate == gate && d.ApproverUserID == approverUserID {
			count++
		}
	}
	return count, nil
}

type memDirectory struct {
	users map[string]*domain.User
}

func (d *memDirectory) Lookup(ctx context.Context, userID string) (*domain.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type memRegistry struct {
	mu        sync.Mutex
	calls     int
	lastOwner map[string]string
}

func newMemRegistry() *memRegistry {
	return &memRegistry{lastOwner: make(map[string]string)}
}

func (r *memRegistry) SetOwner(ctx context.Context, serviceID, teamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastOwner[serviceID] = teamID
	return nil
}

func (r *memRegistry) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memNotifier struct {
	mu       sync.Mutex
	resolved []domain.TransferRequest
}

func (n *memNotifier) RequestResolved(ctx context.Context, req *domain.TransferRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, *req)
}

func (n *memNotifier) CountFor(requestID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, r := range n.resolved {
		if r.ID == requestID {
			count++
		}
	}
	return count
}

type fixedGates struct {
	gates []domain.GateRequirement
}

func (f fixedGates) RequiredGates(requestType string) ([]domain.GateRequirement, error) {
	return append([]domain.GateRequirement(nil), f.gates...), nil
}
