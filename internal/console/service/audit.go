package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/ownership-console/internal/audit"
)

// AuditLogProvider описывает контракт для чтения данных аудита.
// Используем структуру Event из пакета audit, чтобы сохранить единую модель данных.
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, actorID, requestID string) ([]audit.Event, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchLogs запрашивает логи с фильтрацией.
// Логика фильтрации (пустые строки или конкретные ID) инкапсулирована в репозитории.
func (s *AuditService) FetchLogs(ctx context.Context, actorID, requestID string) ([]audit.Event, error) {
	logs, err := s.repo.FetchLogs(ctx, actorID, requestID)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
