package production

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Prometheus collectors for production events.
type Metrics struct {
	plans     *prometheus.CounterVec
	exports   *prometheus.CounterVec
	completed prometheus.Counter
	defects   prometheus.Counter
}

// NewMetrics registers the production collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glassflow_production_plans_total",
			Help: "Production plans created or torn down.",
		}, []string{"op"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glassflow_material_exports_total",
			Help: "Material exports applied to production orders.",
		}, []string{"op"}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glassflow_orders_completed_total",
			Help: "Production orders transitioned to COMPLETED.",
		}),
		defects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glassflow_defect_reports_total",
			Help: "Defect reports recorded against production outputs.",
		}),
	}
	registerer.MustRegister(m.plans, m.exports, m.completed, m.defects)
	return m
}

func (m *Metrics) planEvent(op string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(op).Inc()
}

func (m *Metrics) exportEvent(op string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(op).Inc()
}

func (m *Metrics) orderCompleted() {
	if m == nil {
		return
	}
	m.completed.Inc()
}

func (m *Metrics) defectReported() {
	if m == nil {
		return
	}
	m.defects.Inc()
}
