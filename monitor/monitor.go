// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wfunc/undercover/models"
)

type Metrics struct {
	Connections   prometheus.Gauge
	ActiveRooms   prometheus.Gauge
	Actions       *prometheus.CounterVec
	ActionLatency *prometheus.HistogramVec
	GamesFinished *prometheus.CounterVec
	VoteConflicts prometheus.Counter
	PhaseChanges  *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Player actions by name and result message",
		}, []string{"action", "result"}),
		ActionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_latency_seconds",
			Help:      "Action processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"action"}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games by winning side",
		}, []string{"winner"}),
		VoteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_conflicts_total",
			Help:      "Tied votes that forced a revote",
		}),
		PhaseChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_changes_total",
			Help:      "Room phase transitions",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		m.Connections,
		m.ActiveRooms,
		m.Actions,
		m.ActionLatency,
		m.GamesFinished,
		m.VoteConflicts,
		m.PhaseChanges,
	)

	return m
}

// Monitor 汇总服务端指标。nil *Monitor 的方法都是空操作，方便测试
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started",
		}, func() float64 {
			return time.Since(m.startTime).Seconds()
		}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Monitor) IncConnections() {
	if m == nil {
		return
	}
	m.metrics.Connections.Inc()
}

func (m *Monitor) DecConnections() {
	if m == nil {
		return
	}
	m.metrics.Connections.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) ObserveAction(action, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.Actions.WithLabelValues(action, result).Inc()
	m.metrics.ActionLatency.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Monitor) GameFinished(winner models.Winner) {
	if m == nil {
		return
	}
	m.metrics.GamesFinished.WithLabelValues(string(winner)).Inc()
}

func (m *Monitor) IncVoteConflicts() {
	if m == nil {
		return
	}
	m.metrics.VoteConflicts.Inc()
}

// PhaseChanged implements room.Observer.
func (m *Monitor) PhaseChanged(code string, from, to models.Phase) {
	if m == nil {
		return
	}
	m.metrics.PhaseChanges.WithLabelValues(string(from), string(to)).Inc()
}
