package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/ownership-console/internal/domain"
)

// GetService возвращает сущность каталога. (nil, nil) — сервиса нет.
func (r *Repo) GetService(ctx context.Context, id string) (*domain.Service, error) {
	query := `SELECT id, name, owner_team_id, created_at, updated_at
		FROM services WHERE id = $1`

	s := &domain.Service{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.OwnerTeamID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to read service: %w", err)
	}
	return s, nil
}

// SetOwner переписывает владельца сервиса. Запись идемпотентна:
// установка того же владельца повторно — безвредный no-op на уровне данных.
func (r *Repo) SetOwner(ctx context.Context, serviceID, teamID string) error {
	query := `UPDATE services SET owner_team_id = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, teamID, serviceID)
	if err != nil {
		return fmt.Errorf("postgres: failed to set service owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: service %s not found", serviceID)
	}
	return nil
}
