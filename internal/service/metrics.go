package service

import (
	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TransitionOpen     = "open"
	TransitionAdvance  = "advance"
	TransitionRollback = "rollback"
	TransitionFinish   = "finish"
)

// Metrics counts engine activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	heatsRecorded    *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	tiesDetected     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		heatsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpv_heats_recorded_total",
			Help: "Heats recorded, including tie-break heats.",
		}, []string{"discipline"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpv_stage_transitions_total",
			Help: "Stage graph changes by kind.",
		}, []string{"kind"}),
		tiesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fpv_ties_detected_total",
			Help: "Unresolved ties that blocked a stage transition.",
		}),
	}
	reg.MustRegister(m.heatsRecorded, m.stageTransitions, m.tiesDetected)
	return m
}

func (m *Metrics) heatRecorded(d bracket.Discipline) {
	if m == nil {
		return
	}
	m.heatsRecorded.WithLabelValues(string(d)).Inc()
}

func (m *Metrics) transition(kind string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) tiesBlocked(n int) {
	if m == nil || n == 0 {
		return
	}
	m.tiesDetected.Add(float64(n))
}
