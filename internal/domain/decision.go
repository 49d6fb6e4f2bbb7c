package domain

import "time"

// Вид решения. Других вариантов нет: либо подтверждаем, либо ветируем.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "APPROVE"
	DecisionReject  DecisionKind = "REJECT"
)

// Decision — неизменяемая запись журнала решений (append-only).
// Одна строка на одно событие; строки никогда не правятся и не удаляются.
type Decision struct {
	ID             string       `json:"id"`
	RequestID      string       `json:"request_id"`
	ApproverUserID string       `json:"approver_user_id"`
	Gate           Gate         `json:"gate"`
	Kind           DecisionKind `json:"kind"`
	Note           *string      `json:"note,omitempty"`
	DecidedAt      time.Time    `json:"decided_at"`
}

// Identity — кандидат-согласующий в момент подачи решения.
// Роли берутся из каталога на момент решения (в отличие от снапшота инициатора).
type Identity struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// HasRole проверяет наличие роли у согласующего
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
