// Package audit содержит журнал событий безопасности сервиса приёма заказов.
package audit

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity описывает серьёзность события безопасности.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityHigh    Severity = "HIGH"
)

// EventType описывает тип события безопасности.
type EventType string

const (
	EventAuthFailure          EventType = "AUTH_FAILURE"
	EventIdentityMismatch     EventType = "IDENTITY_MISMATCH"
	EventInvalidInput         EventType = "INVALID_INPUT"
	EventInvalidProduct       EventType = "INVALID_PRODUCT"
	EventPriceManipulation    EventType = "PRICE_MANIPULATION"
	EventPriceMismatchWarning EventType = "PRICE_MISMATCH_WARNING"
	EventCatalogDegraded      EventType = "CATALOG_DEGRADED"
	EventUnauthorizedAccess   EventType = "UNAUTHORIZED_ACCESS"
	EventStatusChange         EventType = "STATUS_CHANGE"
	EventOrderDeleted         EventType = "ORDER_DELETED"
	EventOrderExported        EventType = "ORDER_EXPORTED"
)

// Event описывает одну запись журнала событий безопасности.
// Значения Fields должны быть заранее очищены от чувствительных данных.
type Event struct {
	ID       string
	Time     time.Time
	Type     EventType
	Severity Severity
	Fields   map[string]string
}

// Recorder определяет контракт журнала событий безопасности.
// Журнал только пополняется: записи не изменяются и не удаляются.
type Recorder interface {
	Record(e Event)
}

// ZapRecorder записывает события безопасности в структурированный лог zap.
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder создаёт журнал событий безопасности поверх указанного логгера.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{
		logger: logger.Named("audit"),
	}
}

// Record добавляет событие в журнал.
func (r *ZapRecorder) Record(e Event) {
	e = normalize(e)

	fields := make([]zap.Field, 0, len(e.Fields)+3)
	fields = append(fields,
		zap.String("eventId", e.ID),
		zap.Time("eventTime", e.Time),
		zap.String("severity", string(e.Severity)),
	)
	for k, v := range e.Fields {
		fields = append(fields, zap.String(k, v))
	}

	switch e.Severity {
	case SeverityHigh:
		r.logger.Error(string(e.Type), fields...)
	case SeverityWarning:
		r.logger.Warn(string(e.Type), fields...)
	default:
		r.logger.Info(string(e.Type), fields...)
	}
}

// MemoryRecorder хранит события в памяти. Используется в тестах.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRecorder создаёт журнал событий в памяти.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record добавляет событие в журнал.
func (r *MemoryRecorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, normalize(e))
}

// Events возвращает копию всех записанных событий.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Event, len(r.events))
	copy(res, r.events)
	return res
}

// ByType возвращает события указанного типа.
func (r *MemoryRecorder) ByType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Event
	for _, e := range r.events {
		if e.Type == t {
			res = append(res, e)
		}
	}
	return res
}

func normalize(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	return e
}

// MaskEmail скрывает локальную часть адреса, оставляя первые два символа и домен.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return mask(email)
	}
	return mask(email[:at]) + email[at:]
}

// MaskPhone скрывает номер телефона, оставляя первые два и последние два символа.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return mask(phone)
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

func mask(s string) string {
	if len(s) <= 2 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-2)
}
