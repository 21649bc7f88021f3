package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации исполнения
// - Alertmanager для уведомлений о массовых отказах
// - Анализ качества лестницы (распределение попыток до исполнения)

// ============ Метрики эпизодов ============

// EpisodesTotal - завершённые эпизоды по исходам
var EpisodesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spreadpilot",
		Subsystem: "execution",
		Name:      "episodes_total",
		Help:      "Completed execution episodes by terminal state",
	},
	[]string{"outcome"}, // FILLED, MID_TOO_LOW, NO_MARGIN, LIMIT_REACHED, GATEWAY_UNREACHABLE
)

// LadderAttempts - распределение числа попыток до завершения эпизода
var LadderAttempts = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "spreadpilot",
		Subsystem: "execution",
		Name:      "ladder_attempts",
		Help:      "Number of limit order attempts per episode",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	},
)

// FillLatency - время от старта эпизода до исполнения
var FillLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "spreadpilot",
		Subsystem: "execution",
		Name:      "fill_latency_seconds",
		Help:      "Time from episode start to fill in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
)

// SlippageObserved - разница между стартовой и итоговой ценой исполнения
var SlippageObserved = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "spreadpilot",
		Subsystem: "execution",
		Name:      "slippage_observed",
		Help:      "Difference between initial mid and fill price",
		Buckets:   []float64{0, 0.05, 0.10, 0.15, 0.20, 0.30, 0.50},
	},
)

// ============ Метрики риска ============

// RiskTier - текущий риск-уровень позиций
var RiskTier = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "spreadpilot",
		Subsystem: "risk",
		Name:      "position_tier",
		Help:      "Number of monitored positions by risk tier",
	},
	[]string{"tier"}, // SAFE, RISK, CRITICAL
)

// AutoLiquidations - автоликвидации по входу в CRITICAL
var AutoLiquidations = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "spreadpilot",
		Subsystem: "risk",
		Name:      "auto_liquidations_total",
		Help:      "Number of automatic position liquidations",
	},
)

// AssignmentsDetected - обнаруженные ассайнменты короткой ноги
var AssignmentsDetected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "spreadpilot",
		Subsystem: "risk",
		Name:      "assignments_detected_total",
		Help:      "Number of short leg assignments detected",
	},
)

// ============ Метрики алертов ============

// AlertsEmitted - алерты по типам
var AlertsEmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spreadpilot",
		Subsystem: "alerts",
		Name:      "emitted_total",
		Help:      "Alerts emitted by type",
	},
	[]string{"type"},
)

// AlertDeliveryFailures - сбои доставки алертов (БД или стрим)
var AlertDeliveryFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spreadpilot",
		Subsystem: "alerts",
		Name:      "delivery_failures_total",
		Help:      "Alert delivery failures by sink",
	},
	[]string{"sink"}, // db, stream
)

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spreadpilot",
		Subsystem: "execution",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"}, // alerts, signals
)

// ActivePositions - незакрытые позиции
var ActivePositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spreadpilot",
		Subsystem: "positions",
		Name:      "active",
		Help:      "Current number of non-closed positions",
	},
)

// ============ Вспомогательные функции ============

// RecordEpisode записывает завершённый эпизод
func RecordEpisode(outcome string, attempts int, latencySeconds float64) {
	EpisodesTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		LadderAttempts.Observe(float64(attempts))
	}
	if outcome == EpisodeFilled {
		FillLatency.Observe(latencySeconds)
	}
}

// RecordSlippage записывает проскальзывание исполненного эпизода
func RecordSlippage(initialMid, fillPrice float64) {
	s := initialMid - fillPrice
	if s < 0 {
		s = 0
	}
	SlippageObserved.Observe(s)
}

// RecordAlert записывает эмиссию алерта
func RecordAlert(alertType string) {
	AlertsEmitted.WithLabelValues(alertType).Inc()
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// UpdateRiskTiers обновляет распределение позиций по риск-уровням
func UpdateRiskTiers(counts map[string]int) {
	for _, tier := range []string{TierSafe, TierRisk, TierCritical} {
		RiskTier.WithLabelValues(tier).Set(float64(counts[tier]))
	}
}
