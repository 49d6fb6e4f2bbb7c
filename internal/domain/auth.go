package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleSysAdmin — роль, дающая право голоса в воротах SYS_ADMIN
const RoleSysAdmin = "SYSTEM_ADMIN"

type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"` // Напр. ["SYSTEM_ADMIN"]
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// User — запись каталога (Identity/Directory).
// Из нее в момент создания заявки замораживается RequesterSnapshot,
// а в момент решения строится Identity согласующего.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Никогда не отправляем на фронт
	TeamIDs      []string  `json:"team_ids"`
	ManagerID    string    `json:"manager_id"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot строит организационный срез для заморозки в заявке
func (u *User) Snapshot() RequesterSnapshot {
	return RequesterSnapshot{
		TeamIDs:   append([]string(nil), u.TeamIDs...),
		ManagerID: u.ManagerID,
		Roles:     append([]string(nil), u.Roles...),
	}
}

// Identity строит представление согласующего для проверки допуска
func (u *User) Identity() Identity {
	return Identity{
		UserID: u.ID,
		Roles:  append([]string(nil), u.Roles...),
	}
}
