package audit

import "time"

// Действия, попадающие в аудит консоли
const (
	ActionCreateRequest  = "TRANSFER_REQUEST_CREATED"
	ActionSubmitDecision = "TRANSFER_DECISION_SUBMITTED"
	ActionCancelRequest  = "TRANSFER_REQUEST_CANCELLED"
	ActionCascadeResolve = "TRANSFER_CASCADE_RESOLVED"
)

type Event struct {
	ID        string                 `json:"id"`         // UUID события
	ActorID   string                 `json:"actor_id"`   // Кто делал
	Action    string                 `json:"action"`     // Что именно
	RequestID string                 `json:"request_id"` // По какой заявке
	ServiceID string                 `json:"service_id"` // По какому сервису
	Details   map[string]interface{} `json:"details"`    // Контекст (ворота, вид решения, итог)
	Timestamp time.Time              `json:"timestamp"`
}
