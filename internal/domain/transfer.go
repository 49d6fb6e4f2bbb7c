package domain

import (
	"errors"
	"time"
)

// Статусы State Machine заявки на передачу владения
type TransferStatus string

const (
	StatusPending   TransferStatus = "PENDING"
	StatusApproved  TransferStatus = "APPROVED"
	StatusRejected  TransferStatus = "REJECTED"
	StatusCancelled TransferStatus = "CANCELLED"
)

// Terminal сообщает, является ли статус конечным.
// Из терминального статуса переходов нет.
func (s TransferStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

var (
	ErrInvalidTransition = errors.New("invalid transfer status transition")
	ErrAlreadyFinalized  = errors.New("transfer request already finalized")
)

// Типы заявок. Пока один вариант, но поле заведено под расширение.
const RequestTypeOwnershipTransfer = "SERVICE_OWNERSHIP_TRANSFER"

// Gate — именованная контрольная точка согласования.
// Закрытое множество вариантов: новый тип ворот добавляется новой константой
// и веткой в workflow.IsEligible, без открытого полиморфизма.
type Gate string

const (
	// GateSysAdmin — решение принимает системный администратор (по роли, команда не важна)
	GateSysAdmin Gate = "SYS_ADMIN"
	// GateLineManager — решение принимает непосредственный руководитель инициатора
	GateLineManager Gate = "LINE_MANAGER"
)

// GateRequirement — кворумный контракт одних ворот.
// MinApprovals фиксируется при создании заявки и больше не меняется.
type GateRequirement struct {
	Gate         Gate `json:"gate"`
	MinApprovals int  `json:"min_approvals"`
}

// RequesterSnapshot — организационный срез инициатора, замороженный в момент
// создания заявки. Смена руководителя или команды ПОСЛЕ создания не влияет
// на то, кто вправе согласовывать: считаем только по снапшоту.
type RequesterSnapshot struct {
	TeamIDs   []string `json:"team_ids"`
	ManagerID string   `json:"manager_id"`
	Roles     []string `json:"roles"`
}

// TransferTarget — что и для кого запрашивается
type TransferTarget struct {
	ServiceID string `json:"service_id"`
	TeamID    string `json:"team_id"`
}

// GateTally — денормализованный счетчик по воротам.
// Это кэш-проекция журнала решений: кворум по нему НЕ считается,
// перед переходом счет всегда пересобирается из журнала.
type GateTally struct {
	Approvals  int `json:"approvals"`
	Rejections int `json:"rejections"`
}

type TransferRequest struct {
	ID              string            `json:"id"`
	RequestType     string            `json:"request_type"`
	RequesterUserID string            `json:"requester_user_id"`
	Target          TransferTarget    `json:"target"`
	RequiredGates   []GateRequirement `json:"required_gates"`
	Status          TransferStatus    `json:"status"`

	RequesterSnapshot RequesterSnapshot  `json:"requester_snapshot"`
	Counts            map[Gate]GateTally `json:"counts"`

	// Версия для optimistic concurrency: каждый переход обязан предъявить
	// прочитанную версию и проигрывает, если она уже изменилась
	Version int64 `json:"version"`

	Note         *string `json:"note,omitempty"`
	CancelReason *string `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo проверяет правила конечного автомата
func (t *TransferRequest) CanTransitionTo(next TransferStatus) error {
	if t.Status != StatusPending {
		return ErrAlreadyFinalized
	}
	if next == StatusPending {
		return ErrInvalidTransition
	}
	return nil
}

// GateRequired сообщает, входят ли ворота в контракт этой заявки
func (t *TransferRequest) GateRequired(g Gate) bool {
	for _, req := range t.RequiredGates {
		if req.Gate == g {
			return true
		}
	}
	return false
}
