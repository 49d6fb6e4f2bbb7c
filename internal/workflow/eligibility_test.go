package workflow

import (
	"testing"

	"github.com/xela07ax/ownership-console/internal/domain"
)

func TestIsEligible(t *testing.T) {
	snap := domain.RequesterSnapshot{
		TeamIDs:   []string{"team-a"},
		ManagerID: "mgr-7",
		Roles:     []string{"ENGINEER"},
	}

	tests := []struct {
		name     string
		gate     domain.Gate
		approver domain.Identity
		want     bool
	}{
		{
			name:     "sysadmin gate accepts role holder",
			gate:     domain.GateSysAdmin,
			approver: domain.Identity{UserID: "any-user", Roles: []string{domain.RoleSysAdmin}},
			want:     true,
		},
		{
			name:     "sysadmin gate rejects without role",
			gate:     domain.GateSysAdmin,
			approver: domain.Identity{UserID: "mgr-7", Roles: []string{"ENGINEER"}},
			want:     false,
		},
		{
			name:     "manager gate accepts only snapshot manager",
			gate:     domain.GateLineManager,
			approver: domain.Identity{UserID: "mgr-7"},
			want:     true,
		},
		{
			name:     "manager gate rejects other users even sysadmins",
			gate:     domain.GateLineManager,
			approver: domain.Identity{UserID: "admin-1", Roles: []string{domain.RoleSysAdmin}},
			want:     false,
		},
		{
			name:     "manager gate rejects empty user id",
			gate:     domain.GateLineManager,
			approver: domain.Identity{UserID: ""},
			want:     false,
		},
		{
			name:     "unknown gate always false",
			gate:     domain.Gate("SECURITY_REVIEW"),
			approver: domain.Identity{UserID: "mgr-7", Roles: []string{domain.RoleSysAdmin}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEligible(snap, tt.gate, tt.approver); got != tt.want {
				t.Errorf("IsEligible(%s, %s) = %v, want %v", tt.gate, tt.approver.UserID, got, tt.want)
			}
		})
	}
}

func TestIsEligibleIdempotent(t *testing.T) {
	snap := domain.RequesterSnapshot{ManagerID: "mgr-7"}
	approver := domain.Identity{UserID: "mgr-7"}

	// Снапшот заморожен: повторные вызовы с теми же входами дают тот же ответ
	for i := 0; i < 5; i++ {
		if !IsEligible(snap, domain.GateLineManager, approver) {
			t.Fatalf("call %d: eligibility flipped for identical inputs", i)
		}
	}
}

func TestIsEligibleIgnoresLiveOrgChanges(t *testing.T) {
	// Заявка заморозила mgr-old; новый руководитель права голоса не получает
	snap := domain.RequesterSnapshot{ManagerID: "mgr-old"}

	if IsEligible(snap, domain.GateLineManager, domain.Identity{UserID: "mgr-new"}) {
		t.Error("manager appointed after freeze must not be eligible")
	}
	if !IsEligible(snap, domain.GateLineManager, domain.Identity{UserID: "mgr-old"}) {
		t.Error("snapshot manager must stay eligible")
	}
}
