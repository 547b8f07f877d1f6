package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommerceMetrics counts orders and payment session outcomes.
type CommerceMetrics struct {
	orders   *prometheus.CounterVec
	payments *prometheus.CounterVec
	revenue  *prometheus.CounterVec
}

func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	m := &CommerceMetrics{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created by fulfillment type.",
		}, []string{"type"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "outcomes_total",
			Help:      "Payment sessions reaching a resolved status.",
		}, []string{"status"}),
		revenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "captured_minor_units_total",
			Help:      "Sum of completed payment amounts in minor units.",
		}, []string{"currency"}),
	}
	reg.MustRegister(m.orders, m.payments, m.revenue)
	return m
}

func (m *CommerceMetrics) IncOrder(orderType string) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(orderType)).Inc()
}

func (m *CommerceMetrics) IncPaymentOutcome(status string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *CommerceMetrics) AddCaptured(currency string, amount int64) {
	if m == nil || m.revenue == nil || amount <= 0 {
		return
	}
	m.revenue.WithLabelValues(normalizeLabel(currency)).Add(float64(amount))
}
