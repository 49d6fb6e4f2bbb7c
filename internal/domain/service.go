package domain

import "time"

// Service — сущность каталога (Service Registry).
// Ядро workflow пишет сюда ровно одно поле — OwnerTeamID — и только после
// одобрения заявки. Запись идемпотентна: повторная установка того же
// владельца безвредна.
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerTeamID string    `json:"owner_team_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
