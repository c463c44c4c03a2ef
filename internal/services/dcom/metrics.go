package dcom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/modbus"
)

// Metrics groups the master's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	commands   *prometheus.CounterVec
	updates    prometheus.Counter
	alarms     *prometheus.CounterVec
	discarded  prometheus.Counter
	queueDepth prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcom",
			Name:      "commands_total",
			Help:      "Modbus commands executed, by function and outcome.",
		}, []string{"function", "outcome"}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dcom",
			Name:      "point_updates_total",
			Help:      "Point values applied to the point store.",
		}),
		alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcom",
			Name:      "alarm_transitions_total",
			Help:      "Alarm transitions, by new alarm state.",
		}, []string{"alarm"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dcom",
			Name:      "responses_discarded_total",
			Help:      "Responses dropped because their transaction id matched no pending command.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dcom",
			Name:      "command_queue_depth",
			Help:      "Commands waiting in the executor queue.",
		}),
	}
	reg.MustRegister(m.commands, m.updates, m.alarms, m.discarded, m.queueDepth)
	return m
}

func (m *Metrics) commandDone(fc modbus.FunctionCode, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commands.WithLabelValues(fc.String(), outcome).Inc()
}

func (m *Metrics) pointUpdated() {
	if m == nil {
		return
	}
	m.updates.Inc()
}

func (m *Metrics) alarmChanged(a model.AlarmType) {
	if m == nil {
		return
	}
	m.alarms.WithLabelValues(string(a)).Inc()
}

func (m *Metrics) responseDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
