package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mmeshcher/orderdesk-system/internal/audit"
	"github.com/mmeshcher/orderdesk-system/internal/model"
	"github.com/mmeshcher/orderdesk-system/internal/repository"
)

type stubValidator struct {
	order *model.Order
	err   error
}

func (v *stubValidator) Validate(ctx context.Context, sub model.OrderSubmission, ident *model.Identity) (*model.Order, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.order, nil
}

type stubAuthz struct {
	admins map[string]bool
	err    error
}

func (a *stubAuthz) IsAdmin(ctx context.Context, ident *model.Identity) (bool, error) {
	if ident == nil {
		return false, nil
	}
	if a.err != nil {
		return false, a.err
	}
	return a.admins[ident.UID], nil
}

func (a *stubAuthz) CanAccessOrder(ctx context.Context, ident *model.Identity, owner string) bool {
	if ident == nil {
		return false
	}
	if ident.UID == owner {
		return true
	}
	admin, err := a.IsAdmin(ctx, ident)
	return err == nil && admin
}

type stubProber struct {
	reachable bool
}

func (p *stubProber) Reachable(ctx context.Context) bool {
	return p.reachable
}

func ident(uid string) *model.Identity {
	return &model.Identity{UID: uid}
}

func testOrder(id, owner string) *model.Order {
	return &model.Order{
		ID:          id,
		OwnerUserID: owner,
		Status:      model.OrderStatusPending,
		Items: []model.OrderItem{
			{ProductID: "p1", Quantity: 1, UnitPrice: 1000, LineTotal: 1000},
		},
		TotalItems: 1,
		TotalPrice: 1000,
	}
}

func newTestService(t *testing.T, authz *stubAuthz, rec audit.Recorder) (*Service, *repository.MemoryRepository) {
	t.Helper()

	repo := repository.NewMemoryRepository()
	svc := NewService(repo, &stubValidator{order: testOrder("100", "user-1")}, authz, nil, rec, nil)
	return svc, repo
}

func TestSubmitOrder(t *testing.T) {
	rec := audit.NewMemoryRecorder()
	svc, repo := newTestService(t, &stubAuthz{}, rec)

	order, persisted, err := svc.SubmitOrder(context.Background(), model.OrderSubmission{}, ident("user-1"))
	if err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}
	if persisted {
		t.Fatalf("memory store must report persisted=false")
	}
	if order.ID != "100" {
		t.Fatalf("unexpected order id %q", order.ID)
	}

	if _, err := repo.GetOrder(context.Background(), "100"); err != nil {
		t.Fatalf("order must be stored: %v", err)
	}
}

func TestSubmitOrder_ValidationError(t *testing.T) {
	repo := repository.NewMemoryRepository()
	wantErr := errors.New("rejected")
	svc := NewService(repo, &stubValidator{err: wantErr}, &stubAuthz{}, nil, audit.NewMemoryRecorder(), nil)

	_, _, err := svc.SubmitOrder(context.Background(), model.OrderSubmission{}, ident("user-1"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	orders, _ := repo.ListOrders(context.Background())
	if len(orders) != 0 {
		t.Fatalf("rejected submission must not be stored")
	}
}

func TestGetOrder_Access(t *testing.T) {
	rec := audit.NewMemoryRecorder()
	authz := &stubAuthz{admins: map[string]bool{"admin-1": true}}
	svc, _ := newTestService(t, authz, rec)

	ctx := context.Background()
	if _, _, err := svc.SubmitOrder(ctx, model.OrderSubmission{}, ident("user-1")); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	if _, err := svc.GetOrder(ctx, "100", ident("user-1")); err != nil {
		t.Fatalf("owner must read the order: %v", err)
	}
	if _, err := svc.GetOrder(ctx, "100", ident("admin-1")); err != nil {
		t.Fatalf("admin must read the order: %v", err)
	}

	_, err := svc.GetOrder(ctx, "100", ident("user-2"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(rec.ByType(audit.EventUnauthorizedAccess)) != 1 {
		t.Fatalf("forbidden read must be recorded in the audit log")
	}

	_, err = svc.GetOrder(ctx, "100", nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	_, err = svc.GetOrder(ctx, "missing", ident("user-1"))
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListOrders_AdminOnly(t *testing.T) {
	authz := &stubAuthz{admins: map[string]bool{"admin-1": true}}
	svc, _ := newTestService(t, authz, audit.NewMemoryRecorder())
	ctx := context.Background()

	if _, err := svc.ListOrders(ctx, ident("admin-1")); err != nil {
		t.Fatalf("admin must list orders: %v", err)
	}

	_, err := svc.ListOrders(ctx, ident("user-1"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	_, err = svc.ListOrders(ctx, nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	rec := audit.NewMemoryRecorder()
	authz := &stubAuthz{admins: map[string]bool{"admin-1": true}}
	svc, _ := newTestService(t, authz, rec)
	ctx := context.Background()

	if _, _, err := svc.SubmitOrder(ctx, model.OrderSubmission{}, ident("user-1")); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	// Пропуск промежуточных статусов допустим: pending -> shipped.
	updated, err := svc.UpdateStatus(ctx, "100", model.OrderStatusShipped, ident("admin-1"))
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if updated.Status != model.OrderStatusShipped {
		t.Fatalf("status = %q, want shipped", updated.Status)
	}

	events := rec.ByType(audit.EventStatusChange)
	if len(events) != 1 {
		t.Fatalf("status change must be recorded in the audit log")
	}
	if events[0].Fields["oldStatus"] != "pending" || events[0].Fields["newStatus"] != "shipped" {
		t.Fatalf("unexpected audit fields: %v", events[0].Fields)
	}

	// Движение назад по жизненному циклу запрещено.
	_, err = svc.UpdateStatus(ctx, "100", model.OrderStatusProcessing, ident("admin-1"))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	// Отмена доступна из любого нетерминального статуса.
	if _, err := svc.UpdateStatus(ctx, "100", model.OrderStatusCancelled, ident("admin-1")); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	// Терминальный заказ неизменяем.
	_, err = svc.UpdateStatus(ctx, "100", model.OrderStatusPending, ident("admin-1"))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	_, err = svc.UpdateStatus(ctx, "100", model.OrderStatus("archived"), ident("admin-1"))
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	_, err = svc.UpdateStatus(ctx, "100", model.OrderStatusShipped, ident("user-1"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDeleteOrder(t *testing.T) {
	rec := audit.NewMemoryRecorder()
	authz := &stubAuthz{admins: map[string]bool{"admin-1": true}}
	svc, repo := newTestService(t, authz, rec)
	ctx := context.Background()

	if _, _, err := svc.SubmitOrder(ctx, model.OrderSubmission{}, ident("user-1")); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	if err := svc.DeleteOrder(ctx, "100", ident("user-1")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if err := svc.DeleteOrder(ctx, "100", ident("admin-1")); err != nil {
		t.Fatalf("DeleteOrder error: %v", err)
	}
	if _, err := repo.GetOrder(ctx, "100"); !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("order must be deleted")
	}
	if len(rec.ByType(audit.EventOrderDeleted)) != 1 {
		t.Fatalf("deletion must be recorded in the audit log")
	}
}

func TestExportOrders(t *testing.T) {
	rec := audit.NewMemoryRecorder()
	authz := &stubAuthz{admins: map[string]bool{"admin-1": true}}
	svc, _ := newTestService(t, authz, rec)
	ctx := context.Background()

	if _, _, err := svc.SubmitOrder(ctx, model.OrderSubmission{}, ident("user-1")); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	orders, err := svc.ExportOrders(ctx, ident("admin-1"))
	if err != nil {
		t.Fatalf("ExportOrders error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}

	events := rec.ByType(audit.EventOrderExported)
	if len(events) != 1 || events[0].Fields["count"] != "1" {
		t.Fatalf("export must be recorded with the order count: %v", events)
	}
}

func TestStats(t *testing.T) {
	authz := &stubAuthz{admins: map[string]bool{"admin-1": true}}
	svc, _ := newTestService(t, authz, audit.NewMemoryRecorder())
	ctx := context.Background()

	if _, _, err := svc.SubmitOrder(ctx, model.OrderSubmission{}, ident("user-1")); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "100", model.OrderStatusDelivered, ident("admin-1")); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Total != 1 || stats.ByStatus[model.OrderStatusDelivered] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Persistent {
		t.Fatalf("memory store must report persistent=false")
	}
}

func TestHealth(t *testing.T) {
	repo := repository.NewMemoryRepository()

	svc := NewService(repo, &stubValidator{}, &stubAuthz{}, nil, audit.NewMemoryRecorder(), nil)
	h := svc.Health(context.Background())
	if h.Status != "ok" || h.Catalog != "not_configured" {
		t.Fatalf("unexpected health: %+v", h)
	}

	svc = NewService(repo, &stubValidator{}, &stubAuthz{}, &stubProber{reachable: false}, audit.NewMemoryRecorder(), nil)
	h = svc.Health(context.Background())
	if h.Status != "degraded" || h.Catalog != "unavailable" {
		t.Fatalf("unexpected health: %+v", h)
	}
}
