package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/ownership-console/internal/audit"
	"github.com/xela07ax/ownership-console/internal/domain"
	"github.com/xela07ax/ownership-console/internal/infra"
	"github.com/xela07ax/ownership-console/internal/workflow"
)

// TransferReader описывает, что сервису нужно от хранилища для чтений.
// Все записи идут только через ядро workflow.
type TransferReader interface {
	GetByID(ctx context.Context, id string) (*domain.TransferRequest, error)
	FindTransfers(ctx context.Context, status domain.TransferStatus, serviceID string) ([]*domain.TransferRequest, error)
}

// DirectoryReader — каталог пользователей для построения Identity согласующего
type DirectoryReader interface {
	Lookup(ctx context.Context, userID string) (*domain.User, error)
}

// ServiceReader — реестр сервисов для валидации цели заявки
type ServiceReader interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
}

// TransferService — прикладной слой консоли над ядром workflow:
// read-through кэш на чтениях, аудит и делегирование записей оркестратору
type TransferService struct {
	engine    *workflow.Engine
	reader    TransferReader
	directory DirectoryReader
	registry  ServiceReader
	rdb       *redis.Client
	trail     audit.Recorder
	logger    *zap.Logger
	cacheTTL  time.Duration
}

func NewTransferService(
	engine *workflow.Engine,
	reader TransferReader,
	directory DirectoryReader,
	registry ServiceReader,
	rdb *redis.Client,
	trail audit.Recorder,
	logger *zap.Logger,
	cacheTTL time.Duration,
) *TransferService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &TransferService{
		engine:    engine,
		reader:    reader,
		directory: directory,
		registry:  registry,
		rdb:       rdb,
		trail:     trail,
		logger:    logger.Named("transfer-service"),
		cacheTTL:  cacheTTL,
	}
}

// GetTransfer — чтение заявки через кэш. Кэш не участвует в корректности:
// промах или протухание просто уводят в Postgres.
func (s *TransferService) GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error) {
	key := infra.GetTransferKey(id)

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var cached domain.TransferRequest
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return &cached, nil
			}
			// Битую запись выкидываем и идем в базу
			s.rdb.Del(ctx, key)
		}
	}

	req, err := s.reader.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", id, workflow.ErrNotFound)
	}

	if s.rdb != nil {
		if raw, jerr := json.Marshal(req); jerr == nil {
			if serr := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); serr != nil {
				s.logger.Debug("cache write failed", zap.Error(serr))
			}
		}
	}
	return req, nil
}

// GetTransfers — очередь согласования (Decision Queue) с фильтрацией
func (s *TransferService) GetTransfers(ctx context.Context, status, serviceID string) ([]*domain.TransferRequest, error) {
	return s.reader.FindTransfers(ctx, domain.TransferStatus(status), serviceID)
}

// CreateTransfer создает заявку от имени авторизованного пользователя.
// Цель проверяется по реестру до запуска workflow: заявка на несуществующий
// сервис не должна попадать в очередь согласования.
func (s *TransferService) CreateTransfer(ctx context.Context, requesterID string, target domain.TransferTarget, note *string) (*domain.TransferRequest, error) {
	svc, err := s.registry.GetService(ctx, target.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("service registry read failed: %w", err)
	}
	if svc == nil {
		return nil, fmt.Errorf("service %s: %w", target.ServiceID, workflow.ErrNotFound)
	}

	req, err := s.engine.CreateRequest(ctx, requesterID, target, note)
	if err != nil {
		return nil, err
	}

	s.trail.Record(audit.Event{
		ID:        req.ID + ":created",
		ActorID:   requesterID,
		Action:    audit.ActionCreateRequest,
		RequestID: req.ID,
		ServiceID: target.ServiceID,
		Details: map[string]interface{}{
			"team_id": target.TeamID,
		},
	})
	return req, nil
}

// Decide проводит решение согласующего через оркестратор.
// Роли согласующего берутся из каталога на момент решения.
func (s *TransferService) Decide(ctx context.Context, requestID, approverID string, gate domain.Gate, kind domain.DecisionKind, note *string) (*domain.TransferRequest, *workflow.CascadeResult, error) {
	approver, err := s.directory.Lookup(ctx, approverID)
	if err != nil {
		return nil, nil, fmt.Errorf("directory lookup failed: %w", err)
	}
	if approver == nil {
		// Токен валиден, но в каталоге пользователя уже нет
		return nil, nil, fmt.Errorf("approver %s: %w", approverID, workflow.ErrUnauthorized)
	}

	req, cascade, err := s.engine.SubmitDecision(ctx, requestID, approver.Identity(), gate, kind, note)
	if err != nil {
		return nil, nil, err
	}

	s.trail.Record(audit.Event{
		ID:        fmt.Sprintf("%s:%s:%s", requestID, gate, approverID),
		ActorID:   approverID,
		Action:    audit.ActionSubmitDecision,
		RequestID: requestID,
		ServiceID: req.Target.ServiceID,
		Details: map[string]interface{}{
			"gate":   gate,
			"kind":   kind,
			"status": req.Status,
		},
	})
	// Каскад — отдельное событие: затронуты чужие заявки, а не только эта
	if cascade != nil && cascade.AutoApproved+cascade.AutoRejected > 0 {
		s.trail.Record(audit.Event{
			ID:        requestID + ":cascade",
			ActorID:   approverID,
			Action:    audit.ActionCascadeResolve,
			RequestID: requestID,
			ServiceID: req.Target.ServiceID,
			Details: map[string]interface{}{
				"auto_approved": cascade.AutoApproved,
				"auto_rejected": cascade.AutoRejected,
			},
		})
	}
	return req, cascade, nil
}

// CancelTransfer — отзыв заявки ее инициатором
func (s *TransferService) CancelTransfer(ctx context.Context, requestID, actorID, reason string) (*domain.TransferRequest, error) {
	req, err := s.engine.Cancel(ctx, requestID, actorID, reason)
	if err != nil {
		return req, err
	}

	s.trail.Record(audit.Event{
		ID:        req.ID + ":cancelled",
		ActorID:   actorID,
		Action:    audit.ActionCancelRequest,
		RequestID: req.ID,
		ServiceID: req.Target.ServiceID,
		Details: map[string]interface{}{
			"reason": reason,
		},
	})
	return req, nil
}
