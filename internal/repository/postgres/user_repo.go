package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/ownership-console/internal/domain"
)

const userColumns = `id, email, username, password_hash, team_ids, manager_id, roles, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var managerID sql.NullString

	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.TeamIDs, &managerID, &u.Roles, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if managerID.Valid {
		u.ManagerID = managerID.String
	}
	return u, nil
}

// GetUserByUsername — аутентификация консоли. (nil, nil) — пользователя нет.
func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// Lookup — чтение каталога по ID: снапшот инициатора при создании заявки
// и роли согласующего в момент решения
func (r *Repo) Lookup(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}
