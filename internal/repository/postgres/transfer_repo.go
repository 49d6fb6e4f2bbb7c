package postgres

/*
Файл transfer_repo.go содержит хранилище заявок на передачу владения.

Ключевой метод — UpdateIfVersion: условная запись с проверкой версии
(WHERE version = $expected). Это единственный механизм согласованности ядра
под конкурентными подачами решений: проигравший гонку получает false и
перечитывает заявку, никаких блокировок строк не требуется.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/ownership-console/internal/domain"
)

const transferColumns = `id, request_type, requester_user_id, service_id, team_id,
	required_gates, status, requester_snapshot, counts, version, note, cancel_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*domain.TransferRequest, error) {
	var (
		t             domain.TransferRequest
		gatesRaw      []byte
		snapshotRaw   []byte
		countsRaw     []byte
		note, creason sql.NullString
	)

	err := row.Scan(
		&t.ID, &t.RequestType, &t.RequesterUserID,
		&t.Target.ServiceID, &t.Target.TeamID,
		&gatesRaw, &t.Status, &snapshotRaw, &countsRaw,
		&t.Version, &note, &creason,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(gatesRaw, &t.RequiredGates); err != nil {
		return nil, fmt.Errorf("postgres: corrupt required_gates for %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(snapshotRaw, &t.RequesterSnapshot); err != nil {
		return nil, fmt.Errorf("postgres: corrupt requester_snapshot for %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(countsRaw, &t.Counts); err != nil {
		return nil, fmt.Errorf("postgres: corrupt counts for %s: %w", t.ID, err)
	}

	// Маппим NULL значения в строки (если есть)
	if note.Valid {
		val := note.String
		t.Note = &val
	}
	if creason.Valid {
		val := creason.String
		t.CancelReason = &val
	}
	return &t, nil
}

// GetByID возвращает заявку вместе с версией. (nil, nil) — заявки нет.
func (r *Repo) GetByID(ctx context.Context, id string) (*domain.TransferRequest, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_requests WHERE id = $1`

	t, err := scanTransfer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to read transfer request: %w", err)
	}
	return t, nil
}

// Create сохраняет новую заявку (version = 0, статус PENDING)
func (r *Repo) Create(ctx context.Context, t *domain.TransferRequest) error {
	gates, err := json.Marshal(t.RequiredGates)
	if err != nil {
		return fmt.Errorf("postgres: marshal gates: %w", err)
	}
	snapshot, err := json.Marshal(t.RequesterSnapshot)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}
	counts, err := json.Marshal(t.Counts)
	if err != nil {
		return fmt.Errorf("postgres: marshal counts: %w", err)
	}

	query := `INSERT INTO transfer_requests
		(id, request_type, requester_user_id, service_id, team_id, required_gates,
		 status, requester_snapshot, counts, version, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.pool.Exec(ctx, query,
		t.ID, t.RequestType, t.RequesterUserID,
		t.Target.ServiceID, t.Target.TeamID, gates,
		t.Status, snapshot, counts, t.Version, t.Note,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create transfer request: %w", err)
	}
	return nil
}

// UpdateIfVersion атомарно переводит заявку и поднимает версию.
// Проверка версии в WHERE исключает Double Decision и двойной каскад:
// из конкурентных писателей побеждает ровно один.
// Счетчики-проекция перезаписываются в той же самой записи.
func (r *Repo) UpdateIfVersion(ctx context.Context, id string, expectedVersion int64, status domain.TransferStatus, counts map[domain.Gate]domain.GateTally, cancelReason *string) (bool, error) {
	countsRaw, err := json.Marshal(counts)
	if err != nil {
		return false, fmt.Errorf("postgres: marshal counts: %w", err)
	}

	query := `
		UPDATE transfer_requests
		SET status = $1,
		    counts = $2,
		    cancel_reason = COALESCE($3, cancel_reason),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $4 AND version = $5`

	tag, err := r.pool.Exec(ctx, query, status, countsRaw, cancelReason, id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("postgres: conditional update failed: %w", err)
	}
	// 0 строк — версия уже ушла вперед (или заявки нет): гонка проиграна
	return tag.RowsAffected() == 1, nil
}

// ListPendingForService — кандидаты каскада: все PENDING заявки на сервис,
// кроме только что одобренной
func (r *Repo) ListPendingForService(ctx context.Context, serviceID, excludeID string) ([]*domain.TransferRequest, error) {
	query := `SELECT ` + transferColumns + `
		FROM transfer_requests
		WHERE service_id = $1 AND status = 'PENDING' AND id <> $2
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, serviceID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query pending siblings: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.TransferRequest, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan transfer request: %w", err)
		}
		results = append(results, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// FindTransfers фильтрация и выборка очереди согласования (Decision Queue)
func (r *Repo) FindTransfers(ctx context.Context, status domain.TransferStatus, serviceID string) ([]*domain.TransferRequest, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_requests`

	var args []interface{}
	where := ""
	if status != "" {
		args = append(args, status)
		where = fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	if serviceID != "" {
		args = append(args, serviceID)
		if where == "" {
			where = fmt.Sprintf(" WHERE service_id = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND service_id = $%d", len(args))
		}
	}

	query += where + " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query transfers: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.TransferRequest, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan transfer request: %w", err)
		}
		results = append(results, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
