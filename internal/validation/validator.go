// Package validation реализует проверку заказов и сверку цен с каталогом.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/orderdesk-system/internal/audit"
	"github.com/mmeshcher/orderdesk-system/internal/catalog"
	"github.com/mmeshcher/orderdesk-system/internal/metrics"
	"github.com/mmeshcher/orderdesk-system/internal/model"
)

// priceEpsilon — допустимое расхождение цен при сверке с каталогом.
const priceEpsilon = 0.01

// Границы структурной валидации заказа.
const (
	maxNameLen    = 200
	maxAddressLen = 500
	maxZoneLen    = 200
	maxPhoneLen   = 32
	maxItems      = 50
	maxQuantity   = 1000
)

// Reason описывает причину отклонения заказа.
type Reason string

const (
	ReasonInvalidInput       Reason = "INVALID_INPUT"
	ReasonIdentityMismatch   Reason = "IDENTITY_MISMATCH"
	ReasonInconsistentTotals Reason = "INCONSISTENT_TOTALS"
	ReasonInvalidProduct     Reason = "INVALID_PRODUCT"
	ReasonPriceMismatch      Reason = "PRICE_MISMATCH"
)

// ErrCatalogUnavailable возвращается, если каталог недоступен, а политика
// доверия ценам клиента отключена.
var ErrCatalogUnavailable = errors.New("catalog unavailable, submission rejected by policy")

// RejectionError описывает отклонение заказа с машиночитаемой причиной.
type RejectionError struct {
	Reason  Reason
	Message string
	Details map[string]any
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected: %s: %s", e.Reason, e.Message)
}

// PriceOracle определяет контракт источника авторитетных цен.
type PriceOracle interface {
	PriceOf(ctx context.Context, productID string) (float64, error)
}

// Validator проверяет входящие заказы: структуру, принадлежность отправителю,
// согласованность количеств и соответствие цен каталогу.
type Validator struct {
	oracle  PriceOracle
	audit   audit.Recorder
	metrics *metrics.Metrics

	// trustOnOutage разрешает принимать заказы с ценами клиента,
	// когда каталог недоступен.
	trustOnOutage bool

	now func() time.Time
}

// NewValidator создаёт валидатор заказов.
func NewValidator(oracle PriceOracle, recorder audit.Recorder, m *metrics.Metrics, trustOnOutage bool) *Validator {
	return &Validator{
		oracle:        oracle,
		audit:         recorder,
		metrics:       m,
		trustOnOutage: trustOnOutage,
		now:           time.Now,
	}
}

// Validate проверяет присланный заказ и возвращает нормализованный Order
// со сгенерированным идентификатором и статусом pending. Проверки выполняются
// по порядку, первая неудача прерывает обработку; каждая фиксируется в журнале
// событий безопасности.
func (v *Validator) Validate(ctx context.Context, sub model.OrderSubmission, ident *model.Identity) (*model.Order, error) {
	if fieldErrors := v.checkStructure(sub, ident); len(fieldErrors) > 0 {
		v.audit.Record(audit.Event{
			Type:     audit.EventInvalidInput,
			Severity: audit.SeverityInfo,
			Fields:   map[string]string{"fields": strings.Join(sortedKeys(fieldErrors), ",")},
		})
		return nil, &RejectionError{
			Reason:  ReasonInvalidInput,
			Message: "submission failed structural validation",
			Details: map[string]any{"fields": fieldErrors},
		}
	}

	owner, err := v.bindIdentity(sub, ident)
	if err != nil {
		return nil, err
	}

	if err := v.checkTotals(sub, owner); err != nil {
		return nil, err
	}

	items, total, err := v.reconcilePrices(ctx, sub, owner)
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	return &model.Order{
		ID:          generateOrderID(now),
		OwnerUserID: owner,
		Status:      model.OrderStatusPending,
		Items:       items,
		TotalItems:  sub.TotalItems,
		TotalPrice:  total,
		Contact:     normalizeContact(sub.Contact),
	}, nil
}

func (v *Validator) checkStructure(sub model.OrderSubmission, ident *model.Identity) map[string]string {
	fieldErrors := make(map[string]string)

	switch {
	case strings.TrimSpace(sub.UserName) == "":
		fieldErrors["userName"] = "required"
	case len(sub.UserName) > maxNameLen:
		fieldErrors["userName"] = fmt.Sprintf("must not exceed %d characters", maxNameLen)
	}

	switch {
	case strings.TrimSpace(sub.UserPhone) == "":
		fieldErrors["userPhone"] = "required"
	case len(sub.UserPhone) > maxPhoneLen:
		fieldErrors["userPhone"] = fmt.Sprintf("must not exceed %d characters", maxPhoneLen)
	}

	if sub.UserEmail != "" && !strings.Contains(sub.UserEmail, "@") {
		fieldErrors["userEmail"] = "malformed"
	}

	if len(sub.Address) > maxAddressLen {
		fieldErrors["address"] = fmt.Sprintf("must not exceed %d characters", maxAddressLen)
	}
	if len(sub.Zone) > maxZoneLen {
		fieldErrors["zone"] = fmt.Sprintf("must not exceed %d characters", maxZoneLen)
	}

	switch sub.DeliveryType {
	case "", model.DeliverySimple, model.DeliveryExpress:
	default:
		fieldErrors["deliveryType"] = "must be simple or express"
	}

	switch {
	case len(sub.Items) == 0:
		fieldErrors["items"] = "at least one item is required"
	case len(sub.Items) > maxItems:
		fieldErrors["items"] = fmt.Sprintf("must not exceed %d items", maxItems)
	default:
		for i, it := range sub.Items {
			key := fmt.Sprintf("items[%d]", i)
			if strings.TrimSpace(it.ProductID) == "" {
				fieldErrors[key+".productId"] = "required"
			}
			if len(it.ProductName) > maxNameLen {
				fieldErrors[key+".productName"] = fmt.Sprintf("must not exceed %d characters", maxNameLen)
			}
			if it.Quantity < 1 || it.Quantity > maxQuantity {
				fieldErrors[key+".quantity"] = fmt.Sprintf("must be between 1 and %d", maxQuantity)
			}
			if it.UnitPrice < 0 {
				fieldErrors[key+".price"] = "must not be negative"
			}
			if it.LineTotal < 0 {
				fieldErrors[key+".totalPrice"] = "must not be negative"
			}
		}
	}

	if sub.TotalItems < 1 {
		fieldErrors["totalItems"] = "must be at least 1"
	}
	if sub.TotalPrice < 0 {
		fieldErrors["totalPrice"] = "must not be negative"
	}

	if sub.Status != "" && !model.ValidStatus(model.OrderStatus(sub.Status)) {
		fieldErrors["status"] = "unknown status value"
	}

	// Без аутентификации владелец берётся из тела запроса и обязан быть указан.
	if ident == nil && strings.TrimSpace(sub.UserID) == "" {
		fieldErrors["userId"] = "required"
	}

	return fieldErrors
}

// bindIdentity связывает заказ с проверенной личностью отправителя.
// Аутентифицированный отправитель не может оформить заказ от чужого имени.
func (v *Validator) bindIdentity(sub model.OrderSubmission, ident *model.Identity) (string, error) {
	if ident == nil {
		return sub.UserID, nil
	}

	if sub.UserID != "" && sub.UserID != ident.UID {
		v.audit.Record(audit.Event{
			Type:     audit.EventIdentityMismatch,
			Severity: audit.SeverityHigh,
			Fields: map[string]string{
				"authenticatedUid": ident.UID,
				"declaredUserId":   sub.UserID,
				"email":            audit.MaskEmail(ident.Email),
			},
		})
		return "", &RejectionError{
			Reason:  ReasonIdentityMismatch,
			Message: "declared userId does not match authenticated identity",
		}
	}

	return ident.UID, nil
}

func (v *Validator) checkTotals(sub model.OrderSubmission, owner string) error {
	sum := 0
	for _, it := range sub.Items {
		sum += it.Quantity
	}

	if sum != sub.TotalItems {
		v.audit.Record(audit.Event{
			Type:     audit.EventPriceManipulation,
			Severity: audit.SeverityHigh,
			Fields: map[string]string{
				"userId":               owner,
				"sentTotalItems":       strconv.Itoa(sub.TotalItems),
				"calculatedTotalItems": strconv.Itoa(sum),
			},
		})
		return &RejectionError{
			Reason:  ReasonInconsistentTotals,
			Message: "declared totalItems does not match the sum of item quantities",
			Details: map[string]any{
				"sentTotalItems":       sub.TotalItems,
				"calculatedTotalItems": sum,
			},
		}
	}

	return nil
}

// reconcilePrices сверяет цены заказа с каталогом и возвращает позиции
// с авторитетными ценами. При недоступном каталоге поведение определяется
// политикой trustOnOutage: принять цены клиента или отклонить заказ.
func (v *Validator) reconcilePrices(ctx context.Context, sub model.OrderSubmission, owner string) ([]model.OrderItem, float64, error) {
	prices := make([]float64, len(sub.Items))

	g, gctx := errgroup.WithContext(ctx)
	for i, it := range sub.Items {
		g.Go(func() error {
			price, err := v.oracle.PriceOf(gctx, it.ProductID)
			if err != nil {
				return err
			}
			prices[i] = price
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			v.audit.Record(audit.Event{
				Type:     audit.EventInvalidProduct,
				Severity: audit.SeverityWarning,
				Fields:   map[string]string{"userId": owner, "error": err.Error()},
			})
			return nil, 0, &RejectionError{
				Reason:  ReasonInvalidProduct,
				Message: err.Error(),
			}
		}

		// Каталог недоступен: осознанный компромисс в пользу доступности.
		v.metrics.IncDegraded()
		v.audit.Record(audit.Event{
			Type:     audit.EventCatalogDegraded,
			Severity: audit.SeverityWarning,
			Fields: map[string]string{
				"userId":  owner,
				"trusted": strconv.FormatBool(v.trustOnOutage),
				"error":   err.Error(),
			},
		})

		if !v.trustOnOutage {
			return nil, 0, fmt.Errorf("%w: %s", ErrCatalogUnavailable, err)
		}

		return declaredItems(sub), sub.TotalPrice, nil
	}

	items := make([]model.OrderItem, len(sub.Items))
	var mismatches []map[string]any
	total := 0.0

	for i, it := range sub.Items {
		authoritative := prices[i]
		lineTotal := authoritative * float64(it.Quantity)
		total += lineTotal

		// Любое расхождение цены позиции фиксируется в журнале, даже если
		// расхождения взаимно компенсируются и итог сходится с каталогом.
		deviation := math.Abs(it.UnitPrice - authoritative)
		if deviation > 0 {
			v.audit.Record(audit.Event{
				Type:     audit.EventPriceMismatchWarning,
				Severity: audit.SeverityWarning,
				Fields: map[string]string{
					"userId":          owner,
					"productId":       it.ProductID,
					"sentPrice":       formatPrice(it.UnitPrice),
					"calculatedPrice": formatPrice(authoritative),
				},
			})
		}
		if deviation > priceEpsilon {
			mismatches = append(mismatches, map[string]any{
				"productId":       it.ProductID,
				"sentPrice":       it.UnitPrice,
				"calculatedPrice": authoritative,
			})
		}

		items[i] = model.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   authoritative,
			LineTotal:   lineTotal,
		}
	}

	if math.Abs(sub.TotalPrice-total) > priceEpsilon {
		v.audit.Record(audit.Event{
			Type:     audit.EventPriceManipulation,
			Severity: audit.SeverityHigh,
			Fields: map[string]string{
				"userId":               owner,
				"sentTotalPrice":       formatPrice(sub.TotalPrice),
				"calculatedTotalPrice": formatPrice(total),
			},
		})
		return nil, 0, &RejectionError{
			Reason:  ReasonPriceMismatch,
			Message: "declared totalPrice does not match catalog prices",
			Details: map[string]any{
				"sentTotalPrice":       sub.TotalPrice,
				"calculatedTotalPrice": total,
				"items":                mismatches,
			},
		}
	}

	return items, total, nil
}

// declaredItems возвращает позиции заказа с ценами клиента как есть.
func declaredItems(sub model.OrderSubmission) []model.OrderItem {
	items := make([]model.OrderItem, len(sub.Items))
	for i, it := range sub.Items {
		lineTotal := it.LineTotal
		if lineTotal == 0 {
			lineTotal = it.UnitPrice * float64(it.Quantity)
		}
		items[i] = model.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   lineTotal,
		}
	}
	return items
}

func normalizeContact(c model.Contact) model.Contact {
	if c.DeliveryType == "" {
		c.DeliveryType = model.DeliverySimple
	}
	c.UserName = strings.TrimSpace(c.UserName)
	c.UserPhone = strings.TrimSpace(c.UserPhone)
	return c
}

// generateOrderID строит идентификатор заказа из времени приёма.
// Наносекундный суффикс снижает вероятность коллизий при одновременных
// заявках; совпадение идентификаторов хранилище считает ошибкой.
func generateOrderID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + strconv.FormatInt(now.UnixNano()%1000, 10)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
