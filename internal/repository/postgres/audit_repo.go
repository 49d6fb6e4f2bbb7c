package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/ownership-console/internal/audit"

	"github.com/xela07ax/ownership-console/internal/domain"
)

// WriteBatch сохраняет пачку событий аудита за один INSERT.
// Вызывается батч-воркером (internal/audit), не хендлерами напрямую.
func (r *Repo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	numFields := 7
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7)

		details, _ := json.Marshal(e.Details)

		vals = append(vals,
			e.ID, e.ActorID, e.Action, e.RequestID, e.ServiceID, details, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_logs (id, actor_id, action, request_id, service_id, details, created_at) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}

// FetchLogs запрашивает логи аудита с фильтрацией по актору и заявке
func (r *Repo) FetchLogs(ctx context.Context, actorID, requestID string) ([]audit.Event, error) {
	query := `SELECT id, actor_id, action, request_id, service_id, details, created_at
		FROM audit_logs`

	var args []interface{}
	var conds []string
	if actorID != "" {
		args = append(args, actorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if requestID != "" {
		args = append(args, requestID)
		conds = append(conds, fmt.Sprintf("request_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT 200"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit logs: %w", err)
	}
	defer rows.Close()

	results := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e          audit.Event
			reqID, svc sql.NullString
			details    []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &reqID, &svc, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit log: %w", err)
		}
		if reqID.Valid {
			e.RequestID = reqID.String
		}
		if svc.Valid {
			e.ServiceID = svc.String
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		results = append(results, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// GetTransferDashboard собирает сводку консоли одним-двумя запросами
func (r *Repo) GetTransferDashboard(ctx context.Context) (*domain.TransferDashboard, error) {
	d := &domain.TransferDashboard{}

	// 1. Очередь и итоги за сутки
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COALESCE(EXTRACT(EPOCH FROM NOW() - MIN(created_at) FILTER (WHERE status = 'PENDING')) / 3600, 0)::bigint,
			COUNT(*) FILTER (WHERE status = 'APPROVED'  AND updated_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE status = 'REJECTED'  AND updated_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED' AND updated_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE status = 'REJECTED'  AND cancel_reason = $1 AND updated_at > NOW() - INTERVAL '24 hours')
		FROM transfer_requests`, cascadeRejectReason).Scan(
		&d.Queue.PendingRequests,
		&d.Queue.OldestPendingH,
		&d.Outcomes.Approved24h,
		&d.Outcomes.Rejected24h,
		&d.Outcomes.Cancelled24h,
		&d.Cascades.AutoRejected24h,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard request stats: %w", err)
	}

	// Авто-одобренные каскадом: одобрены, но собственных решений в журнале нет
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM transfer_requests t
		WHERE t.status = 'APPROVED'
		  AND t.updated_at > NOW() - INTERVAL '24 hours'
		  AND NOT EXISTS (SELECT 1 FROM transfer_decisions d WHERE d.request_id = t.id)`).Scan(
		&d.Cascades.AutoApproved24h,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard cascade stats: %w", err)
	}

	// 2. Активность согласующих за сутки
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT approver_user_id)
		FROM transfer_decisions
		WHERE decided_at > NOW() - INTERVAL '24 hours'`).Scan(
		&d.Activity.Decisions24h,
		&d.Activity.Approvers24h,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard decision stats: %w", err)
	}
	return d, nil
}

// cascadeRejectReason дублирует workflow.CascadeReasonOwnershipGranted,
// чтобы слой хранения не тянул пакет ядра
const cascadeRejectReason = "OWNERSHIP_GRANTED_TO_OTHER_TEAM"
