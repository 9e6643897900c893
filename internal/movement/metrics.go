package movement

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики планировщика
type Metrics struct {
	MovesApplied  prometheus.Counter
	MovesBlocked  prometheus.Counter
	MovesDropped  prometheus.Counter
	UnknownEntity prometheus.Counter
	Entities      prometheus.Gauge
	QueuedMoves   prometheus.Gauge
	TickDuration  prometheus.Histogram
	EventsDropped prometheus.Counter
	EventsFailed  prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil: без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MovesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "moves_applied_total",
			Help:      "Шагов, применённых планировщиком (включая заблокированные).",
		}),
		MovesBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "moves_blocked_total",
			Help:      "Шагов в заблокированный тайл или за границу карты.",
		}),
		MovesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "moves_dropped_total",
			Help:      "Запросов, вытесненных из переполненной очереди.",
		}),
		UnknownEntity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "unknown_entity_total",
			Help:      "Запросов для неизвестных или отключённых сущностей.",
		}),
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "movement",
			Name:      "entities",
			Help:      "Сущностей в планировщике.",
		}),
		QueuedMoves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "movement",
			Name:      "queued_moves",
			Help:      "Запросов в очередях после последнего тика.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "movement",
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика планировщика.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "events_dropped_total",
			Help:      "Событий шины, потерянных из-за переполненной очереди.",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "events_failed_total",
			Help:      "Событий, которые шина не приняла (ошибка или таймаут).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MovesApplied, m.MovesBlocked, m.MovesDropped, m.UnknownEntity,
			m.Entities, m.QueuedMoves, m.TickDuration, m.EventsDropped, m.EventsFailed)
	}
	return m
}
