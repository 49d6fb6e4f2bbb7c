package policy

import (
	"errors"
	"fmt"

	"github.com/xela07ax/ownership-console/internal/domain"
)

var ErrUnknownRequestType = errors.New("no gate policy for request type")

// Table — кворумные контракты по типам заявок. Контракт читается один раз
// при создании заявки и замораживается в ней: правка таблицы не меняет
// уже созданные заявки.
type Table struct {
	rules map[string][]domain.GateRequirement
}

// Default — штатный контракт передачи владения:
// один голос сисадмина и один голос руководителя инициатора
func Default() *Table {
	return &Table{
		rules: map[string][]domain.GateRequirement{
			domain.RequestTypeOwnershipTransfer: {
				{Gate: domain.GateSysAdmin, MinApprovals: 1},
				{Gate: domain.GateLineManager, MinApprovals: 1},
			},
		},
	}
}

// NewTable строит таблицу из конфигурации. Пороги меньше единицы отклоняются:
// ворота без кворума не имеют смысла.
func NewTable(rules map[string][]domain.GateRequirement) (*Table, error) {
	for reqType, gates := range rules {
		if len(gates) == 0 {
			return nil, fmt.Errorf("request type %s: empty gate list", reqType)
		}
		seen := make(map[domain.Gate]bool, len(gates))
		for _, g := range gates {
			if g.MinApprovals < 1 {
				return nil, fmt.Errorf("request type %s, gate %s: min_approvals must be >= 1", reqType, g.Gate)
			}
			if seen[g.Gate] {
				return nil, fmt.Errorf("request type %s: duplicate gate %s", reqType, g.Gate)
			}
			seen[g.Gate] = true
		}
	}
	return &Table{rules: rules}, nil
}

// RequiredGates возвращает копию контракта, чтобы заявка владела своим слайсом
func (t *Table) RequiredGates(requestType string) ([]domain.GateRequirement, error) {
	gates, ok := t.rules[requestType]
	if !ok {
		return nil, fmt.Errorf("%s: %w", requestType, ErrUnknownRequestType)
	}
	return append([]domain.GateRequirement(nil), gates...), nil
}
