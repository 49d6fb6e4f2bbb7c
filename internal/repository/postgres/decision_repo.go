package postgres

/*
Файл decision_repo.go — append-only журнал решений.
Строки только вставляются: ни UPDATE, ни DELETE здесь нет и быть не должно.
Кворум всегда пересчитывается из этого журнала, а не из счетчиков заявки.
*/

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xela07ax/ownership-console/internal/domain"
)

// Append вставляет одну запись журнала. Вставка атомарна, частичной записи
// не бывает; повторный Append при сбое не выполняется (см. оркестратор).
func (r *Repo) Append(ctx context.Context, d *domain.Decision) error {
	query := `INSERT INTO transfer_decisions
		(id, request_id, approver_user_id, gate, kind, note, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.RequestID, d.ApproverUserID, d.Gate, d.Kind, d.Note, d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append decision: %w", err)
	}
	return nil
}

// ListByRequest возвращает журнал заявки в порядке добавления
func (r *Repo) ListByRequest(ctx context.Context, requestID string) ([]domain.Decision, error) {
	query := `SELECT id, request_id, approver_user_id, gate, kind, note, decided_at
		FROM transfer_decisions
		WHERE request_id = $1
		ORDER BY decided_at, id`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query decisions: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Decision, 0)
	for rows.Next() {
		var (
			d    domain.Decision
			note sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.RequestID, &d.ApproverUserID, &d.Gate, &d.Kind, &note, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan decision: %w", err)
		}
		if note.Valid {
			val := note.String
			d.Note = &val
		}
		results = append(results, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// CountForGateByApprover — сколько раз согласующий уже голосовал в воротах.
// Используется оркестратором для отсечения повторного голоса.
func (r *Repo) CountForGateByApprover(ctx context.Context, requestID string, gate domain.Gate, approverUserID string) (int, error) {
	query := `SELECT COUNT(*)
		FROM transfer_decisions
		WHERE request_id = $1 AND gate = $2 AND approver_user_id = $3`

	var count int
	if err := r.pool.QueryRow(ctx, query, requestID, gate, approverUserID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: failed to count approver decisions: %w", err)
	}
	return count, nil
}
