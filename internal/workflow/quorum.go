package workflow

import "github.com/xela07ax/ownership-console/internal/domain"

// Outcome — результат пересчета кворума по текущему журналу решений
type Outcome struct {
	// Satisfied: набраны ли голоса по каждым воротам контракта
	Satisfied map[domain.Gate]bool
	// Status: PENDING, APPROVED или REJECTED
	Status domain.TransferStatus
	// Counts — свежая проекция журнала для денормализованных счетчиков заявки.
	// Записывается в той же условной транзакции, что поднимает version.
	Counts map[domain.Gate]domain.GateTally
}

// Evaluate пересчитывает кворум заявки с нуля по журналу решений.
//
// Правила:
//  1. Ворота закрыты, когда число РАЗЛИЧНЫХ согласующих с APPROVE >= MinApprovals.
//     Дубли одного согласующего схлопываются (журнал исторически мог их накопить).
//  2. Один REJECT в любых воротах — вето: итог REJECTED независимо от остальных.
//  3. Все ворота закрыты и вето нет — APPROVED.
//  4. Иначе — PENDING.
//
// Функция чистая и дешевая; мемоизировать ее между вызовами нельзя —
// параллельные подачи меняют журнал между чтениями.
func Evaluate(required []domain.GateRequirement, decisions []domain.Decision) Outcome {
	approvers := make(map[domain.Gate]map[string]struct{}, len(required))
	counts := make(map[domain.Gate]domain.GateTally, len(required))
	for _, req := range required {
		approvers[req.Gate] = make(map[string]struct{})
		counts[req.Gate] = domain.GateTally{}
	}

	vetoed := false
	for _, d := range decisions {
		tally := counts[d.Gate]
		switch d.Kind {
		case domain.DecisionApprove:
			set, ok := approvers[d.Gate]
			if !ok {
				// Решение по воротам вне контракта: в кворум не входит
				continue
			}
			if _, seen := set[d.ApproverUserID]; seen {
				continue
			}
			set[d.ApproverUserID] = struct{}{}
			tally.Approvals++
			counts[d.Gate] = tally
		case domain.DecisionReject:
			vetoed = true
			if _, ok := counts[d.Gate]; ok {
				tally.Rejections++
				counts[d.Gate] = tally
			}
		}
	}

	out := Outcome{
		Satisfied: make(map[domain.Gate]bool, len(required)),
		Counts:    counts,
	}

	allSatisfied := true
	for _, req := range required {
		ok := len(approvers[req.Gate]) >= req.MinApprovals
		out.Satisfied[req.Gate] = ok
		if !ok {
			allSatisfied = false
		}
	}

	switch {
	case vetoed:
		out.Status = domain.StatusRejected
	case allSatisfied:
		out.Status = domain.StatusApproved
	default:
		out.Status = domain.StatusPending
	}
	return out
}
