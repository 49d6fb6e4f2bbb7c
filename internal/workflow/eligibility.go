package workflow

import "github.com/xela07ax/ownership-console/internal/domain"

// IsEligible решает, вправе ли кандидат голосовать в конкретных воротах.
// Чистая функция над снапшотом инициатора и личностью согласующего:
// никаких походов в каталог, никаких ошибок. Неизвестные ворота — всегда false,
// оркестратор превращает false в ErrUnauthorized.
//
// Снапшот заморожен при создании заявки, поэтому смена руководителя после
// создания не меняет результат — проверка детерминирована на всю жизнь заявки.
func IsEligible(snap domain.RequesterSnapshot, gate domain.Gate, approver domain.Identity) bool {
	switch gate {
	case domain.GateSysAdmin:
		// Системный администратор голосует по роли, команда не важна
		return approver.HasRole(domain.RoleSysAdmin)
	case domain.GateLineManager:
		// Только руководитель, зафиксированный в снапшоте
		return approver.UserID != "" && approver.UserID == snap.ManagerID
	default:
		return false
	}
}
