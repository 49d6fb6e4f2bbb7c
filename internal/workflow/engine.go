package workflow

/*
Файл engine.go содержит оркестратор workflow согласования передачи владения.

Одна подача решения — одна логическая единица работы:
Validating -> Appending -> Evaluating -> Transitioning -> (Cascading) -> Done.

Конкурентная корректность держится на одном механизме — optimistic version
заявки. Журнал решений append-only и блокировок не требует; переход статуса
выполняет условная запись "если версия не изменилась". Проигравший гонку
перечитывает заявку и повторяет пересчет кворума ограниченное число раз.
Это гарантирует ключевое свойство: переход PENDING -> APPROVED (и значит
запуск каскада) выполняет ровно одна подача.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/ownership-console/internal/domain"
)

// RequestStore описывает, что ядру нужно от хранилища заявок
type RequestStore interface {
	// GetByID возвращает (nil, nil), если заявки нет
	GetByID(ctx context.Context, id string) (*domain.TransferRequest, error)
	Create(ctx context.Context, req *domain.TransferRequest) error
	// UpdateIfVersion — условная запись: статус, счетчики и version+1
	// применяются только если версия в хранилище равна expectedVersion.
	// false без ошибки — проверка версии проиграна.
	UpdateIfVersion(ctx context.Context, id string, expectedVersion int64, status domain.TransferStatus, counts map[domain.Gate]domain.GateTally, cancelReason *string) (bool, error)
	// ListPendingForService — все PENDING заявки на сервис, кроме указанной
	ListPendingForService(ctx context.Context, serviceID, excludeID string) ([]*domain.TransferRequest, error)
}

// DecisionLedger описывает append-only журнал решений
type DecisionLedger interface {
	Append(ctx context.Context, d *domain.Decision) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.Decision, error)
	CountForGateByApprover(ctx context.Context, requestID string, gate domain.Gate, approverUserID string) (int, error)
}

// Directory — каталог пользователей (Identity/Directory коллаборатор).
// Ядро ходит сюда только при создании заявки: снапшот замораживается
// и повторно каталог для него не опрашивается.
type Directory interface {
	// Lookup возвращает (nil, nil), если пользователя нет
	Lookup(ctx context.Context, userID string) (*domain.User, error)
}

// ServiceRegistry — реестр сервисов. Ядро пишет сюда ровно одно поле
// (владелец) и никогда не читает.
type ServiceRegistry interface {
	// SetOwner идемпотентна: повторная установка того же владельца безвредна
	SetOwner(ctx context.Context, serviceID, teamID string) error
}

// Invalidator — сброс кэша читающей стороны. Fire-and-forget:
// корректность на кэше не держится, ошибки только логируются.
type Invalidator interface {
	Evict(ctx context.Context, requestID string)
}

// Notifier уведомляется о терминальных переходах. Сбой уведомления
// никогда не откатывает переход.
type Notifier interface {
	RequestResolved(ctx context.Context, req *domain.TransferRequest)
}

// GatePolicy выдает кворумный контракт для типа заявки
type GatePolicy interface {
	RequiredGates(requestType string) ([]domain.GateRequirement, error)
}

// Deps — зависимости оркестратора. Cache и Notifier опциональны.
type Deps struct {
	Requests  RequestStore
	Ledger    DecisionLedger
	Directory Directory
	Registry  ServiceRegistry
	Gates     GatePolicy
	Cache     Invalidator
	Notifier  Notifier
	Metrics   *Metrics
	Logger    *zap.Logger
}

// Config — параметры ограниченного ретрая при гонке версий
type Config struct {
	ConflictAttempts uint          // всего попыток цикла "пересчет+переход"
	ConflictDelay    time.Duration // фиксированная пауза между попытками
}

type Engine struct {
	requests  RequestStore
	ledger    DecisionLedger
	directory Directory
	registry  ServiceRegistry
	gates     GatePolicy
	cache     Invalidator
	notifier  Notifier
	metrics   *Metrics
	logger    *zap.Logger

	attempts uint
	delay    time.Duration
}

func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.ConflictAttempts == 0 {
		cfg.ConflictAttempts = 3
	}
	if cfg.ConflictDelay == 0 {
		cfg.ConflictDelay = 25 * time.Millisecond
	}
	m := deps.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		requests:  deps.Requests,
		ledger:    deps.Ledger,
		directory: deps.Directory,
		registry:  deps.Registry,
		gates:     deps.Gates,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		metrics:   m,
		logger:    logger.Named("workflow"),
		attempts:  cfg.ConflictAttempts,
		delay:     cfg.ConflictDelay,
	}
}

// errStaleVersion — внутренний сигнал "проверка версии проиграна, повторяем"
var errStaleVersion = errors.New("stale version")

// CreateRequest заводит новую заявку: замораживает снапшот инициатора
// из каталога и фиксирует кворумный контракт из политики ворот.
func (e *Engine) CreateRequest(ctx context.Context, requesterID string, target domain.TransferTarget, note *string) (*domain.TransferRequest, error) {
	if target.ServiceID == "" || target.TeamID == "" {
		return nil, fmt.Errorf("%w: target service and team are required", ErrNotFound)
	}

	requester, err := e.directory.Lookup(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}
	if requester == nil {
		return nil, fmt.Errorf("requester %s: %w", requesterID, ErrNotFound)
	}

	gates, err := e.gates.RequiredGates(domain.RequestTypeOwnershipTransfer)
	if err != nil {
		return nil, fmt.Errorf("gate policy: %w", err)
	}

	now := time.Now().UTC()
	req := &domain.TransferRequest{
		ID:                uuid.NewString(),
		RequestType:       domain.RequestTypeOwnershipTransfer,
		RequesterUserID:   requesterID,
		Target:            target,
		RequiredGates:     gates,
		Status:            domain.StatusPending,
		RequesterSnapshot: requester.Snapshot(),
		Counts:            emptyCounts(gates),
		Version:           0,
		Note:              note,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := e.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create transfer request: %w", err)
	}

	e.logger.Info("transfer request created",
		zap.String("request_id", req.ID),
		zap.String("service_id", target.ServiceID),
		zap.String("team_id", target.TeamID))
	return req, nil
}

// SubmitDecision проводит одно решение через полный цикл:
// допуск -> журнал -> кворум -> переход -> каскад.
// Возвращает финальное состояние заявки и, если каскад сработал, его итог.
func (e *Engine) SubmitDecision(ctx context.Context, requestID string, approver domain.Identity, gate domain.Gate, kind domain.DecisionKind, note *string) (*domain.TransferRequest, *CascadeResult, error) {
	started := time.Now()
	result := "error"
	defer func() {
		e.metrics.DecisionDuration.WithLabelValues(string(gate), result).Observe(time.Since(started).Seconds())
	}()

	// 1. Загрузка заявки
	req, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status.Terminal() {
		result = "already_finalized"
		return req, nil, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, ErrAlreadyFinalized)
	}
	if !req.GateRequired(gate) {
		return nil, nil, fmt.Errorf("gate %s: %w", gate, ErrUnknownGate)
	}

	// 2. Проверка допуска по замороженному снапшоту
	if !IsEligible(req.RequesterSnapshot, gate, approver) {
		result = "unauthorized"
		return nil, nil, fmt.Errorf("user %s, gate %s: %w", approver.UserID, gate, ErrUnauthorized)
	}

	// Кворум считает различных согласующих — повторный голос режем до записи.
	// Гонку двух одновременных подач одного согласующего эта проверка не
	// закрывает, но Evaluate схлопнет дубль при подсчете.
	prior, err := e.ledger.CountForGateByApprover(ctx, requestID, gate, approver.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger read failed: %w", err)
	}
	if prior > 0 {
		result = "duplicate"
		return nil, nil, fmt.Errorf("user %s, gate %s: %w", approver.UserID, gate, ErrDuplicateDecision)
	}

	// 3. Запись в журнал. Append НЕ ретраится: повтор при неопределившемся
	// исходе породил бы дубль в append-only журнале.
	decision := &domain.Decision{
		ID:             uuid.NewString(),
		RequestID:      requestID,
		ApproverUserID: approver.UserID,
		Gate:           gate,
		Kind:           kind,
		Note:           note,
		DecidedAt:      time.Now().UTC(),
	}
	if err := e.ledger.Append(ctx, decision); err != nil {
		return nil, nil, fmt.Errorf("ledger append failed: %w", err)
	}
	e.metrics.DecisionsTotal.WithLabelValues(string(gate), string(kind)).Inc()

	// 4-6. Пересчет кворума и условный переход, ограниченный ретрай при гонке
	final, raceLost, err := e.applyOutcome(ctx, req)
	if err != nil {
		if errors.Is(err, errStaleVersion) {
			result = "conflict"
			return nil, nil, fmt.Errorf("request %s: %w", requestID, ErrConflict)
		}
		return nil, nil, err
	}
	if raceLost {
		// Заявку финализировал кто-то другой уже после нашей записи в журнал.
		// Голос в журнале, но исход определили не мы — каллер перечитывает заявку.
		result = "conflict"
		return nil, nil, fmt.Errorf("request %s finalized concurrently: %w", requestID, ErrConflict)
	}

	result = string(final.Status)
	e.evict(ctx, final.ID)

	// 7. Каскад и запись владельца — только после нашего PENDING -> APPROVED
	var cascade *CascadeResult
	if final.Status == domain.StatusApproved {
		if err := e.registry.SetOwner(ctx, final.Target.ServiceID, final.Target.TeamID); err != nil {
			// Запись идемпотентна и будет повторена следующим одобрением
			// по этому сервису; переход не откатываем
			e.logger.Error("service registry owner write failed",
				zap.String("service_id", final.Target.ServiceID),
				zap.String("team_id", final.Target.TeamID),
				zap.Error(err))
		}
		res := e.runCascade(ctx, final)
		cascade = &res
	}

	if final.Status.Terminal() {
		e.metrics.TransitionsTotal.WithLabelValues(string(final.Status), "decision").Inc()
		e.notify(ctx, final)
	}
	return final, cascade, nil
}

// Cancel — отзыв заявки инициатором. Идет через ту же version-guarded
// запись, что и любой терминальный переход: гонка с подачей решения
// разрешится ровно в одну сторону.
func (e *Engine) Cancel(ctx context.Context, requestID, actorID, reason string) (*domain.TransferRequest, error) {
	req, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterUserID != actorID {
		return nil, fmt.Errorf("user %s is not the requester: %w", actorID, ErrUnauthorized)
	}
	if req.Status.Terminal() {
		return req, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, ErrAlreadyFinalized)
	}

	cur := req
	var final *domain.TransferRequest
	var lostToDecision bool
	err = retry.New(
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.Delay(e.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		if cur.Status.Terminal() {
			// Проиграли гонку решению: отзыв уже не имеет смысла
			lostToDecision = true
			return nil
		}
		ok, werr := e.requests.UpdateIfVersion(ctx, cur.ID, cur.Version, domain.StatusCancelled, cur.Counts, &reason)
		if werr != nil {
			return fmt.Errorf("conditional write failed: %w", werr)
		}
		if !ok {
			e.metrics.VersionConflicts.Inc()
			reloaded, lerr := e.loadRequest(ctx, requestID)
			if lerr != nil {
				return lerr
			}
			cur = reloaded
			return errStaleVersion
		}
		final = transitioned(cur, domain.StatusCancelled, cur.Counts, &reason)
		return nil
	})
	if err != nil {
		if errors.Is(err, errStaleVersion) {
			return nil, fmt.Errorf("request %s: %w", requestID, ErrConflict)
		}
		return nil, err
	}
	if lostToDecision {
		return cur, fmt.Errorf("request %s is %s: %w", cur.ID, cur.Status, ErrAlreadyFinalized)
	}

	e.metrics.TransitionsTotal.WithLabelValues(string(domain.StatusCancelled), "cancel").Inc()
	e.evict(ctx, final.ID)
	e.notify(ctx, final)
	e.logger.Info("transfer request cancelled",
		zap.String("request_id", final.ID),
		zap.String("actor_id", actorID))
	return final, nil
}

// applyOutcome крутит цикл "перечитать журнал -> пересчитать кворум ->
// условная запись". Счетчики-проекция обновляются в той же записи, что
// поднимает версию, даже если статус остался PENDING.
// raceLost=true — заявку успели финализировать между нашими шагами.
func (e *Engine) applyOutcome(ctx context.Context, req *domain.TransferRequest) (final *domain.TransferRequest, raceLost bool, err error) {
	cur := req
	err = retry.New(
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.Delay(e.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		if cur.Status.Terminal() {
			raceLost = true
			return nil
		}

		// Кворум всегда пересчитывается из журнала, не из счетчиков заявки
		decisions, lerr := e.ledger.ListByRequest(ctx, cur.ID)
		if lerr != nil {
			return fmt.Errorf("ledger read failed: %w", lerr)
		}
		out := Evaluate(cur.RequiredGates, decisions)

		newStatus := cur.Status
		var reason *string
		if out.Status != domain.StatusPending {
			if terr := cur.CanTransitionTo(out.Status); terr != nil {
				raceLost = true
				return nil
			}
			newStatus = out.Status
		}

		ok, werr := e.requests.UpdateIfVersion(ctx, cur.ID, cur.Version, newStatus, out.Counts, reason)
		if werr != nil {
			return fmt.Errorf("conditional write failed: %w", werr)
		}
		if !ok {
			e.metrics.VersionConflicts.Inc()
			reloaded, lerr := e.loadRequest(ctx, cur.ID)
			if lerr != nil {
				return lerr
			}
			cur = reloaded
			return errStaleVersion
		}
		final = transitioned(cur, newStatus, out.Counts, nil)
		return nil
	})
	return final, raceLost, err
}

func (e *Engine) loadRequest(ctx context.Context, id string) (*domain.TransferRequest, error) {
	req, err := e.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("request read failed: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return req, nil
}

func (e *Engine) evict(ctx context.Context, requestID string) {
	if e.cache != nil {
		e.cache.Evict(ctx, requestID)
	}
}

func (e *Engine) notify(ctx context.Context, req *domain.TransferRequest) {
	if e.notifier != nil {
		e.notifier.RequestResolved(ctx, req)
	}
}

// transitioned строит пост-переходное состояние без повторного чтения:
// условная запись гарантирует, что оно совпадает с хранилищем
func transitioned(cur *domain.TransferRequest, status domain.TransferStatus, counts map[domain.Gate]domain.GateTally, reason *string) *domain.TransferRequest {
	next := *cur
	next.Status = status
	next.Counts = counts
	next.Version = cur.Version + 1
	if reason != nil {
		next.CancelReason = reason
	}
	next.UpdatedAt = time.Now().UTC()
	return &next
}

func emptyCounts(gates []domain.GateRequirement) map[domain.Gate]domain.GateTally {
	counts := make(map[domain.Gate]domain.GateTally, len(gates))
	for _, g := range gates {
		counts[g.Gate] = domain.GateTally{}
	}
	return counts
}
