// Package metrics содержит счётчики Prometheus сервиса приёма заказов.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics объединяет счётчики обработки заказов.
// Нулевой указатель безопасен: запись метрик пропускается.
type Metrics struct {
	ordersAccepted prometheus.Counter
	ordersRejected *prometheus.CounterVec
	degradedEvents prometheus.Counter
	statusChanges  *prometheus.CounterVec
}

// New создаёт и регистрирует счётчики в указанном реестре.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "orders_accepted_total",
			Help:      "Total number of accepted order submissions.",
		}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "orders_rejected_total",
			Help:      "Total number of rejected order submissions.",
		}, []string{"reason"}),
		degradedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "catalog_degraded_total",
			Help:      "Submissions processed while the catalog was unreachable.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "status_changes_total",
			Help:      "Total number of order status transitions.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.ordersAccepted, m.ordersRejected, m.degradedEvents, m.statusChanges)
	return m
}

// IncAccepted учитывает принятый заказ.
func (m *Metrics) IncAccepted() {
	if m == nil {
		return
	}
	m.ordersAccepted.Inc()
}

// IncRejected учитывает отклонённый заказ с указанной причиной.
func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// IncDegraded учитывает заказ, обработанный при недоступном каталоге.
func (m *Metrics) IncDegraded() {
	if m == nil {
		return
	}
	m.degradedEvents.Inc()
}

// IncStatusChange учитывает переход заказа в указанный статус.
func (m *Metrics) IncStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// Handler возвращает HTTP-обработчик выдачи метрик.
func Handler() http.Handler {
	return promhttp.Handler()
}
