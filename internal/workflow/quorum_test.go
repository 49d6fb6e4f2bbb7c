package workflow

import (
	"testing"

	"github.com/xela07ax/ownership-console/internal/domain"
)

func decision(approver string, gate domain.Gate, kind domain.DecisionKind) domain.Decision {
	return domain.Decision{
		ID:             approver + "-" + string(gate),
		RequestID:      "req-1",
		ApproverUserID: approver,
		Gate:           gate,
		Kind:           kind,
	}
}

func TestEvaluate(t *testing.T) {
	twoGates := []domain.GateRequirement{
		{Gate: domain.GateSysAdmin, MinApprovals: 1},
		{Gate: domain.GateLineManager, MinApprovals: 2},
	}

	tests := []struct {
		name       string
		required   []domain.GateRequirement
		decisions  []domain.Decision
		wantStatus domain.TransferStatus
	}{
		{
			name:       "empty ledger stays pending",
			required:   twoGates,
			decisions:  nil,
			wantStatus: domain.StatusPending,
		},
		{
			name:     "one gate short of quorum",
			required: twoGates,
			decisions: []domain.Decision{
				decision("admin-1", domain.GateSysAdmin, domain.DecisionApprove),
				decision("mgr-1", domain.GateLineManager, domain.DecisionApprove),
			},
			wantStatus: domain.StatusPending,
		},
		{
			name:     "all gates satisfied",
			required: twoGates,
			decisions: []domain.Decision{
				decision("admin-1", domain.GateSysAdmin, domain.DecisionApprove),
				decision("mgr-1", domain.GateLineManager, domain.DecisionApprove),
				decision("mgr-2", domain.GateLineManager, domain.DecisionApprove),
			},
			wantStatus: domain.StatusApproved,
		},
		{
			name:     "single reject vetoes despite full quorum elsewhere",
			required: twoGates,
			decisions: []domain.Decision{
				decision("admin-1", domain.GateSysAdmin, domain.DecisionApprove),
				decision("mgr-1", domain.GateLineManager, domain.DecisionApprove),
				decision("mgr-2", domain.GateLineManager, domain.DecisionReject),
			},
			wantStatus: domain.StatusRejected,
		},
		{
			name:     "duplicate approver counted once",
			required: twoGates,
			decisions: []domain.Decision{
				decision("admin-1", domain.GateSysAdmin, domain.DecisionApprove),
				decision("mgr-1", domain.GateLineManager, domain.DecisionApprove),
				decision("mgr-1", domain.GateLineManager, domain.DecisionApprove),
			},
			wantStatus: domain.StatusPending,
		},
		{
			name:     "decision for gate outside contract ignored",
			required: []domain.GateRequirement{{Gate: domain.GateSysAdmin, MinApprovals: 1}},
			decisions: []domain.Decision{
				decision("mgr-1", domain.GateLineManager, domain.DecisionApprove),
			},
			wantStatus: domain.StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(tt.required, tt.decisions)
			if out.Status != tt.wantStatus {
				t.Fatalf("Evaluate() status = %s, want %s", out.Status, tt.wantStatus)
			}
		})
	}
}

func TestEvaluateCounts(t *testing.T) {
	required := []domain.GateRequirement{
		{Gate: domain.GateSysAdmin, MinApprovals: 2},
	}
	decisions := []domain.Decision{
		decision("admin-1", domain.GateSysAdmin, domain.DecisionApprove),
		decision("admin-1", domain.GateSysAdmin, domain.DecisionApprove), // дубль
		decision("admin-2", domain.GateSysAdmin, domain.DecisionReject),
	}

	out := Evaluate(required, decisions)
	tally := out.Counts[domain.GateSysAdmin]
	if tally.Approvals != 1 {
		t.Errorf("approvals = %d, want 1 (duplicate collapsed)", tally.Approvals)
	}
	if tally.Rejections != 1 {
		t.Errorf("rejections = %d, want 1", tally.Rejections)
	}
	if out.Status != domain.StatusRejected {
		t.Errorf("status = %s, want REJECTED", out.Status)
	}
	if out.Satisfied[domain.GateSysAdmin] {
		t.Error("gate reported satisfied below quorum")
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	required := []domain.GateRequirement{
		{Gate: domain.GateSysAdmin, MinApprovals: 1},
		{Gate: domain.GateLineManager, MinApprovals: 1},
	}
	decisions := []domain.Decision{
		decision("admin-1", domain.GateSysAdmin, domain.DecisionApprove),
		decision("mgr-1", domain.GateLineManager, domain.DecisionApprove),
	}

	// Один и тот же журнал всегда дает один и тот же исход
	first := Evaluate(required, decisions)
	for i := 0; i < 10; i++ {
		got := Evaluate(required, decisions)
		if got.Status != first.Status {
			t.Fatalf("run %d: status = %s, want %s", i, got.Status, first.Status)
		}
	}
	if first.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want APPROVED", first.Status)
	}
}
