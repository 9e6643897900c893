package network

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики сетевой подсистемы
type Metrics struct {
	Sessions        prometheus.Gauge
	LoggedIn        prometheus.Gauge
	PacketsIn       *prometheus.CounterVec
	PacketsOut      prometheus.Counter
	PacketsDropped  prometheus.Counter
	MalformedPacket prometheus.Counter
	IgnoredPackets  *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil: без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "network",
			Name:      "sessions",
			Help:      "Открытых сессий.",
		}),
		LoggedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "network",
			Name:      "logged_in",
			Help:      "Сессий с персонажем в мире.",
		}),
		PacketsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "packets_in_total",
			Help:      "Принятых пакетов по типу транспорта.",
		}, []string{"transport"}),
		PacketsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "packets_out_total",
			Help:      "Отправленных пакетов.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "packets_dropped_total",
			Help:      "Исходящих пакетов, отброшенных из-за полной очереди.",
		}),
		MalformedPacket: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "malformed_packets_total",
			Help:      "Входящих пакетов, не прошедших декодирование.",
		}),
		IgnoredPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "ignored_packets_total",
			Help:      "Пакетов без обработчика на сервере (бой, банк, торговля...).",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sessions, m.LoggedIn, m.PacketsIn, m.PacketsOut,
			m.PacketsDropped, m.MalformedPacket, m.IgnoredPackets)
	}
	return m
}
