package workflow

import "errors"

// Таксономия ошибок ядра. Хэндлеры маппят их в HTTP-коды через errors.Is,
// поэтому все ошибки — сентинелы, оборачиваемые через %w.
var (
	// ErrNotFound — заявка не существует. Не ретраится.
	ErrNotFound = errors.New("transfer request not found")

	// ErrUnauthorized — согласующий не проходит проверку допуска для этих ворот
	ErrUnauthorized = errors.New("approver is not eligible for this gate")

	// ErrUnknownGate — ворота не входят в контракт заявки
	ErrUnknownGate = errors.New("gate is not required by this request")

	// ErrDuplicateDecision — согласующий уже голосовал в этих воротах.
	// Кворум считает РАЗЛИЧНЫХ согласующих, поэтому дубль режем еще до записи в журнал.
	ErrDuplicateDecision = errors.New("approver already decided for this gate")

	// ErrAlreadyFinalized — заявка уже в терминальном статусе. Информационная,
	// каллеру ничего чинить не нужно.
	ErrAlreadyFinalized = errors.New("transfer request already finalized")

	// ErrConflict — гонка версий не разрешилась за отведенные попытки.
	// Решение каллера уже в журнале, но перевод статуса выполнил кто-то другой
	// (или не выполнил никто) — нужно перечитать заявку и при необходимости повторить.
	ErrConflict = errors.New("version conflict: concurrent update, retries exhausted")
)
