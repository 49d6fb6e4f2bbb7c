package notify

/*
Пакет notify — уведомления о терминальных переходах заявок.
Коллаборатор необязательный: его сбои логируются и никогда не откатывают
переход. Исходящий вызов обернут в ReliabilityWrapper (rate limit, circuit
breaker, retries), чтобы деградация принимающей стороны не тянула консоль.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/ownership-console/internal/domain"
)

// Sender — транспорт одного уведомления
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// WebhookSender постит JSON на настроенный endpoint
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSender) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Уважаем Retry-After, если принимающая сторона его прислала
		retryAfter := 2 * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, perr := strconv.Atoi(v); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &ThrottleError{RetryAfter: retryAfter, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ResolvedNotifier реализует workflow.Notifier поверх надежного транспорта
type ResolvedNotifier struct {
	sender Sender
	logger *zap.Logger
}

func NewResolvedNotifier(sender Sender, logger *zap.Logger) *ResolvedNotifier {
	return &ResolvedNotifier{
		sender: sender,
		logger: logger.Named("notifier"),
	}
}

// RequestResolved шлет событие о терминальном переходе.
// Ошибка только логируется: переход уже состоялся и не откатывается.
func (n *ResolvedNotifier) RequestResolved(ctx context.Context, req *domain.TransferRequest) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":      "transfer_request_resolved",
		"request_id": req.ID,
		"service_id": req.Target.ServiceID,
		"team_id":    req.Target.TeamID,
		"status":     req.Status,
		"version":    req.Version,
	})
	if err != nil {
		n.logger.Error("notification marshal failed", zap.Error(err))
		return
	}

	if err := n.sender.Send(ctx, payload); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("request_id", req.ID),
			zap.String("status", string(req.Status)),
			zap.Error(err))
	}
}
