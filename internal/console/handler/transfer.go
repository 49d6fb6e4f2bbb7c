package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/ownership-console/internal/domain"
	"github.com/xela07ax/ownership-console/internal/infra/auth"
	"github.com/xela07ax/ownership-console/internal/workflow"
)

// TransferService Описываем, что нам нужно от сервиса
type TransferService interface {
	GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error)
	GetTransfers(ctx context.Context, status, serviceID string) ([]*domain.TransferRequest, error)
	CreateTransfer(ctx context.Context, requesterID string, target domain.TransferTarget, note *string) (*domain.TransferRequest, error)
	Decide(ctx context.Context, requestID, approverID string, gate domain.Gate, kind domain.DecisionKind, note *string) (*domain.TransferRequest, *workflow.CascadeResult, error)
	CancelTransfer(ctx context.Context, requestID, actorID, reason string) (*domain.TransferRequest, error)
}

type TransferHandler struct {
	service TransferService
}

func NewTransferHandler(s TransferService) *TransferHandler {
	return &TransferHandler{service: s}
}

type CreateTransferRequest struct {
	ServiceID string  `json:"service_id"`
	TeamID    string  `json:"team_id"`
	Note      *string `json:"note,omitempty"`
}

type DecideRequest struct {
	Gate     domain.Gate `json:"gate"`
	Approved bool        `json:"approved"`
	Note     *string     `json:"note,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// DecideResponse отдает финальное состояние заявки и, если каскад сработал,
// его итог для наблюдаемости
type DecideResponse struct {
	Request *domain.TransferRequest `json:"request"`
	Cascade *workflow.CascadeResult `json:"cascade,omitempty"`
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ServiceID == "" || req.TeamID == "" {
		http.Error(w, "service_id and team_id are required", http.StatusBadRequest)
		return
	}

	requesterID := auth.UserID(r.Context())
	if requesterID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	created, err := h.service.CreateTransfer(r.Context(), requesterID, domain.TransferTarget{
		ServiceID: req.ServiceID,
		TeamID:    req.TeamID,
	}, req.Note)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *TransferHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfer)
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status") // Достаем из ?status=...
	if status == "" {
		status = "PENDING" // Дефолт для удобства очереди согласования
	}
	serviceID := r.URL.Query().Get("service_id")

	list, err := h.service.GetTransfers(r.Context(), status, serviceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *TransferHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Gate == "" {
		http.Error(w, "gate is required", http.StatusBadRequest)
		return
	}

	approverID := auth.UserID(r.Context())
	if approverID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	kind := domain.DecisionReject
	if req.Approved {
		kind = domain.DecisionApprove
	}

	transfer, cascade, err := h.service.Decide(r.Context(), id, approverID, req.Gate, kind, req.Note)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DecideResponse{Request: transfer, Cascade: cascade})
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	actorID := auth.UserID(r.Context())
	if actorID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transfer, err := h.service.CancelTransfer(r.Context(), id, actorID, req.Reason)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfer)
}

// writeWorkflowError маппит таксономию ошибок ядра в HTTP-коды
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workflow.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, workflow.ErrUnknownGate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, workflow.ErrDuplicateDecision),
		errors.Is(err, workflow.ErrAlreadyFinalized),
		errors.Is(err, workflow.ErrConflict):
		// Конфликтная семантика: каллер перечитывает заявку и решает сам
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
