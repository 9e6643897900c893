package client

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики клиента (бот экспортирует их для нагрузочных прогонов)
type Metrics struct {
	Predictions    prometheus.Counter
	Mispredictions prometheus.Counter
	Corrections    *prometheus.CounterVec
	Expired        prometheus.Counter
	RTT            prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil: без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "client",
			Name:      "predictions_total",
			Help:      "Отправленных MoveRequest.",
		}),
		Mispredictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "client",
			Name:      "mispredictions_total",
			Help:      "Ответов сервера, разошедшихся с предсказанием.",
		}),
		Corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "client",
			Name:      "corrections_total",
			Help:      "Коррекций тела по виду (nudge, merge, settle, resync).",
		}, []string{"kind"}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "client",
			Name:      "expired_predictions_total",
			Help:      "Предсказаний, не дождавшихся ответа.",
		}),
		RTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "client",
			Name:      "rtt_seconds",
			Help:      "Сглаженное время приёма-передачи.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Predictions, m.Mispredictions, m.Corrections, m.Expired, m.RTT)
	}
	return m
}
