package domain

// TransferDashboard — сводка для главного экрана консоли
type TransferDashboard struct {
	Queue    QueueStats    `json:"queue"`    // Очередь согласования
	Outcomes OutcomeStats  `json:"outcomes"` // Итоги за сутки
	Cascades CascadeStats  `json:"cascades"` // Автоматические разрешения
	Activity DecisionStats `json:"activity"` // Активность согласующих
}

type QueueStats struct {
	PendingRequests int64 `json:"pending_requests"`
	OldestPendingH  int64 `json:"oldest_pending_hours"`
}

type OutcomeStats struct {
	Approved24h  int64 `json:"approved_24h"`
	Rejected24h  int64 `json:"rejected_24h"`
	Cancelled24h int64 `json:"cancelled_24h"`
}

type CascadeStats struct {
	AutoApproved24h int64 `json:"auto_approved_24h"`
	AutoRejected24h int64 `json:"auto_rejected_24h"`
}

type DecisionStats struct {
	Decisions24h int64 `json:"decisions_24h"`
	Approvers24h int64 `json:"approvers_24h"`
}
