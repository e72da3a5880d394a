// Package service реализует бизнес-логику сервиса приёма заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mmeshcher/orderdesk-system/internal/audit"
	"github.com/mmeshcher/orderdesk-system/internal/metrics"
	"github.com/mmeshcher/orderdesk-system/internal/model"
	"github.com/mmeshcher/orderdesk-system/internal/validation"
)

// ErrUnauthenticated возвращается для операций, требующих проверенной личности.
var (
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden возвращается, если личность не имеет прав на операцию.
	ErrForbidden = errors.New("operation forbidden")
	// ErrInvalidStatus возвращается при неизвестном целевом статусе заказа.
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidTransition возвращается при недопустимом переходе статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Persistent() bool
	Ping(ctx context.Context) error
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListOrdersByOwner(ctx context.Context, ownerUserID string, limit int) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	CountOrdersByStatus(ctx context.Context) (map[model.OrderStatus]int64, error)
}

// Validator описывает контракт проверки входящих заказов.
type Validator interface {
	Validate(ctx context.Context, sub model.OrderSubmission, ident *model.Identity) (*model.Order, error)
}

// Authorizer описывает контракт принятия решений об авторизации.
type Authorizer interface {
	IsAdmin(ctx context.Context, ident *model.Identity) (bool, error)
	CanAccessOrder(ctx context.Context, ident *model.Identity, ownerUserID string) bool
}

// Prober описывает контракт проверки доступности внешнего каталога.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// Максимум заказов в выдаче списка заказов владельца.
const ownerListLimit = 200

// Service содержит бизнес-логику приёма и сопровождения заказов.
type Service struct {
	repo      Repository
	validator Validator
	authz     Authorizer
	catalog   Prober
	audit     audit.Recorder
	metrics   *metrics.Metrics
}

// NewService создаёт сервис с указанными зависимостями. catalog может быть nil,
// если внешний каталог не настроен.
func NewService(repo Repository, validator Validator, authz Authorizer, catalog Prober, recorder audit.Recorder, m *metrics.Metrics) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		authz:     authz,
		catalog:   catalog,
		audit:     recorder,
		metrics:   m,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// SubmitOrder проверяет присланный заказ и сохраняет его. Второе возвращаемое
// значение сообщает, сохранён ли заказ долговременно или только в памяти.
func (s *Service) SubmitOrder(ctx context.Context, sub model.OrderSubmission, ident *model.Identity) (*model.Order, bool, error) {
	order, err := s.validator.Validate(ctx, sub, ident)
	if err != nil {
		s.metrics.IncRejected(rejectionReason(err))
		return nil, false, err
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, false, fmt.Errorf("create order: %w", err)
	}

	s.metrics.IncAccepted()
	return order, s.repo.Persistent(), nil
}

// GetOrder возвращает заказ по идентификатору. Читать заказ могут его владелец
// и администратор.
func (s *Service) GetOrder(ctx context.Context, id string, ident *model.Identity) (*model.Order, error) {
	if ident == nil {
		return nil, ErrUnauthenticated
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.authz.CanAccessOrder(ctx, ident, order.OwnerUserID) {
		s.recordUnauthorized(ident, "get_order", id)
		return nil, ErrForbidden
	}

	return order, nil
}

// ListOrders возвращает все заказы. Операция доступна только администратору.
func (s *Service) ListOrders(ctx context.Context, ident *model.Identity) ([]model.Order, error) {
	if err := s.requireAdmin(ctx, ident, "list_orders"); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx)
}

// ListMyOrders возвращает заказы аутентифицированного отправителя, сначала новые.
func (s *Service) ListMyOrders(ctx context.Context, ident *model.Identity) ([]model.Order, error) {
	if ident == nil {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListOrdersByOwner(ctx, ident.UID, ownerListLimit)
}

// UpdateStatus переводит заказ в новый статус. Переходы допускаются только
// вперёд по жизненному циклу, отмена — из любого нетерминального статуса.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.OrderStatus, ident *model.Identity) (*model.Order, error) {
	if err := s.requireAdmin(ctx, ident, "update_status"); err != nil {
		return nil, err
	}

	if !model.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.audit.Record(audit.Event{
		Type:     audit.EventStatusChange,
		Severity: audit.SeverityInfo,
		Fields: map[string]string{
			"orderId":   id,
			"oldStatus": string(order.Status),
			"newStatus": string(status),
			"actorUid":  ident.UID,
		},
	})
	s.metrics.IncStatusChange(string(status))

	return updated, nil
}

// DeleteOrder удаляет заказ. Операция доступна только администратору.
func (s *Service) DeleteOrder(ctx context.Context, id string, ident *model.Identity) error {
	if err := s.requireAdmin(ctx, ident, "delete_order"); err != nil {
		return err
	}

	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}

	s.audit.Record(audit.Event{
		Type:     audit.EventOrderDeleted,
		Severity: audit.SeverityWarning,
		Fields: map[string]string{
			"orderId":  id,
			"actorUid": ident.UID,
		},
	})

	return nil
}

// ExportOrders возвращает полную выгрузку заказов и фиксирует факт выгрузки
// в журнале событий безопасности.
func (s *Service) ExportOrders(ctx context.Context, ident *model.Identity) ([]model.Order, error) {
	if err := s.requireAdmin(ctx, ident, "export_orders"); err != nil {
		return nil, err
	}

	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	s.audit.Record(audit.Event{
		Type:     audit.EventOrderExported,
		Severity: audit.SeverityInfo,
		Fields: map[string]string{
			"actorUid": ident.UID,
			"count":    strconv.Itoa(len(orders)),
		},
	})

	return orders, nil
}

// Stats описывает агрегированное состояние хранилища заказов.
type Stats struct {
	Total      int64                       `json:"total"`
	ByStatus   map[model.OrderStatus]int64 `json:"byStatus"`
	Persistent bool                        `json:"persistent"`
}

// Stats возвращает количество заказов по статусам.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	return &Stats{
		Total:      total,
		ByStatus:   counts,
		Persistent: s.repo.Persistent(),
	}, nil
}

// Health описывает состояние сервиса и его зависимостей.
type Health struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Catalog    string `json:"catalog"`
	Persistent bool   `json:"persistent"`
}

// Health проверяет доступность хранилища и внешнего каталога.
func (s *Service) Health(ctx context.Context) *Health {
	h := &Health{
		Status:     "ok",
		Database:   "ok",
		Catalog:    "not_configured",
		Persistent: s.repo.Persistent(),
	}

	if err := s.repo.Ping(ctx); err != nil {
		h.Status = "degraded"
		h.Database = "unavailable"
	}

	if s.catalog != nil {
		if s.catalog.Reachable(ctx) {
			h.Catalog = "ok"
		} else {
			h.Status = "degraded"
			h.Catalog = "unavailable"
		}
	}

	return h
}

func (s *Service) requireAdmin(ctx context.Context, ident *model.Identity, operation string) error {
	if ident == nil {
		return ErrUnauthenticated
	}

	admin, err := s.authz.IsAdmin(ctx, ident)
	if err != nil {
		return fmt.Errorf("check admin role: %w", err)
	}
	if !admin {
		s.recordUnauthorized(ident, operation, "")
		return ErrForbidden
	}

	return nil
}

func (s *Service) recordUnauthorized(ident *model.Identity, operation, orderID string) {
	fields := map[string]string{
		"uid":       ident.UID,
		"operation": operation,
	}
	if orderID != "" {
		fields["orderId"] = orderID
	}

	s.audit.Record(audit.Event{
		Type:     audit.EventUnauthorizedAccess,
		Severity: audit.SeverityWarning,
		Fields:   fields,
	})
}

func rejectionReason(err error) string {
	var rej *validation.RejectionError
	if errors.As(err, &rej) {
		return string(rej.Reason)
	}
	if errors.Is(err, validation.ErrCatalogUnavailable) {
		return "CATALOG_UNAVAILABLE"
	}
	return "INTERNAL"
}
