package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/xela07ax/ownership-console/internal/domain"
)

// CascadeReasonOwnershipGranted — машиночитаемая причина авто-отклонения:
// владение сервисом уже отдано другой команде
const CascadeReasonOwnershipGranted = "OWNERSHIP_GRANTED_TO_OTHER_TEAM"

// CascadeResult — итог каскада для наблюдаемости
type CascadeResult struct {
	AutoApproved int `json:"auto_approved"`
	AutoRejected int `json:"auto_rejected"`
}

// runCascade разрешает соседние PENDING заявки на тот же сервис после того,
// как winner прошел PENDING -> APPROVED. Вызывается ровно один раз на заявку:
// запуск привязан к единственному выигравшему условному переходу.
//
// Семантика best effort без кросс-строчных транзакций: каждая соседняя заявка
// переводится независимой условной записью. Проигранная гонка или сбой по
// отдельной заявке пропускается — заявка, оставшаяся PENDING, самоизлечится
// при следующем решении по ней или при следующем одобрении этого сервиса.
func (e *Engine) runCascade(ctx context.Context, winner *domain.TransferRequest) CascadeResult {
	var res CascadeResult

	siblings, err := e.requests.ListPendingForService(ctx, winner.Target.ServiceID, winner.ID)
	if err != nil {
		e.logger.Error("cascade: sibling scan failed",
			zap.String("service_id", winner.Target.ServiceID),
			zap.Error(err))
		return res
	}

	for _, sib := range siblings {
		var (
			next   domain.TransferStatus
			reason *string
		)
		if sib.Target.TeamID == winner.Target.TeamID {
			// Команда уже получила сервис: параллельная заявка той же команды
			// избыточна, а не конкурентна — закрываем как одобренную без кворума
			next = domain.StatusApproved
		} else {
			next = domain.StatusRejected
			r := CascadeReasonOwnershipGranted
			reason = &r
		}

		ok, err := e.requests.UpdateIfVersion(ctx, sib.ID, sib.Version, next, sib.Counts, reason)
		if err != nil {
			e.logger.Warn("cascade: sibling write failed, skipped",
				zap.String("request_id", sib.ID),
				zap.Error(err))
			continue
		}
		if !ok {
			// Заявку уже перевел другой актор — это корректный исход, не ошибка
			e.metrics.VersionConflicts.Inc()
			continue
		}

		switch next {
		case domain.StatusApproved:
			res.AutoApproved++
			e.metrics.CascadeResolved.WithLabelValues("auto_approved").Inc()
		case domain.StatusRejected:
			res.AutoRejected++
			e.metrics.CascadeResolved.WithLabelValues("auto_rejected").Inc()
		}
		e.metrics.TransitionsTotal.WithLabelValues(string(next), "cascade").Inc()

		e.evict(ctx, sib.ID)
		e.notify(ctx, transitioned(sib, next, sib.Counts, reason))
	}

	e.logger.Info("cascade finished",
		zap.String("service_id", winner.Target.ServiceID),
		zap.String("winner_id", winner.ID),
		zap.Int("auto_approved", res.AutoApproved),
		zap.Int("auto_rejected", res.AutoRejected))
	return res
}
