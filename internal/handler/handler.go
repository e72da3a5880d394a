// Package handler содержит HTTP-обработчики API сервиса приёма заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderdesk-system/internal/auth"
	"github.com/mmeshcher/orderdesk-system/internal/middleware"
	"github.com/mmeshcher/orderdesk-system/internal/model"
	"github.com/mmeshcher/orderdesk-system/internal/repository"
	"github.com/mmeshcher/orderdesk-system/internal/service"
	"github.com/mmeshcher/orderdesk-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	SubmitOrder(ctx context.Context, sub model.OrderSubmission, ident *model.Identity) (*model.Order, bool, error)
	GetOrder(ctx context.Context, id string, ident *model.Identity) (*model.Order, error)
	ListOrders(ctx context.Context, ident *model.Identity) ([]model.Order, error)
	ListMyOrders(ctx context.Context, ident *model.Identity) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus, ident *model.Identity) (*model.Order, error)
	DeleteOrder(ctx context.Context, id string, ident *model.Identity) error
	ExportOrders(ctx context.Context, ident *model.Identity) ([]model.Order, error)
	Stats(ctx context.Context) (*service.Stats, error)
	Health(ctx context.Context) *service.Health
}

// Handler реализует HTTP-обработчики API сервиса приёма заказов.
type Handler struct {
	service  Service
	logger   *zap.Logger
	identity *middleware.IdentityMiddleware

	// production запрещает анонимные заказы и скрывает детали внутренних ошибок.
	production bool
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, identity *middleware.IdentityMiddleware, production bool) *Handler {
	return &Handler{
		service:    s,
		logger:     logger,
		identity:   identity,
		production: production,
	}
}

// SubmitOrder принимает новый заказ, проверяет его и сохраняет.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())
	if h.production && ident == nil {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required", nil)
		return
	}

	var sub model.OrderSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_INPUT", "request body is not valid JSON", nil)
		return
	}

	order, persisted, err := h.service.SubmitOrder(r.Context(), sub, ident)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"orderId":   order.ID,
		"persisted": persisted,
	})
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())

	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"), ident)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// ListOrders возвращает все заказы. Доступно только администратору.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())

	orders, err := h.service.ListOrders(r.Context(), ident)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(orders),
		"orders":  orders,
	})
}

// ListMyOrders возвращает заказы аутентифицированного отправителя.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())

	orders, err := h.service.ListMyOrders(r.Context(), ident)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(orders),
		"orders":  orders,
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus переводит заказ в новый статус. Доступно только администратору.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_INPUT", "request body is not valid JSON", nil)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), model.OrderStatus(req.Status), ident)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   order,
	})
}

// DeleteOrder удаляет заказ. Доступно только администратору.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())

	if err := h.service.DeleteOrder(r.Context(), chi.URLParam(r, "id"), ident); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ExportOrders отдаёт полную выгрузку заказов файлом. Доступно только администратору.
func (h *Handler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())

	orders, err := h.service.ExportOrders(r.Context(), ident)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("orders-export-%s.json", now.Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	h.writeJSON(w, http.StatusOK, map[string]any{
		"exportedAt": now.Format(time.RFC3339),
		"count":      len(orders),
		"orders":     orders,
	})
}

// Health возвращает состояние сервиса и его зависимостей.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())

	status := http.StatusOK
	if health.Database == "unavailable" {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, health)
}

// Stats возвращает агрегированную статистику по заказам.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var rej *validation.RejectionError

	switch {
	case errors.As(err, &rej):
		status := http.StatusBadRequest
		if rej.Reason == validation.ReasonIdentityMismatch {
			status = http.StatusForbidden
		}
		h.writeError(w, status, string(rej.Reason), rej.Message, rej.Details)
	case errors.Is(err, validation.ErrCatalogUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "catalog is unavailable, try again later", nil)
	case errors.Is(err, service.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required", nil)
	case errors.Is(err, service.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "FORBIDDEN", "operation not allowed", nil)
	case errors.Is(err, repository.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, service.ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, "INVALID_STATUS", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidTransition):
		h.writeError(w, http.StatusBadRequest, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, auth.ErrRoleStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "ROLE_STORE_UNAVAILABLE", "authorization temporarily unavailable", nil)
	default:
		h.logger.Error("internal error", zap.Error(err))
		message := err.Error()
		if h.production {
			message = "internal server error"
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", message, nil)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{
		"success": false,
		"error":   code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}

	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}
