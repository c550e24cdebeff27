package reservation

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts reservation outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	conflicts       prometheus.Counter
	dangling        prometheus.Counter
	historyFailures prometheus.Counter
}

// NewMetrics creates the reservation collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_operations_total",
				Help: "Reservation operations by kind and result",
			},
			[]string{"op", "result"},
		),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_conflicts_total",
			Help: "Per-item version conflicts hit while updating equipment",
		}),
		dangling: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_dangling_references_total",
			Help: "Equipment ids referenced by events but missing from inventory",
		}),
		historyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_write_failures_total",
			Help: "Equipment history entries that could not be written",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.conflicts, m.dangling, m.historyFailures)
	}
	return m
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, ErrorKind(err)).Inc()
}

func (m *Metrics) incConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) incDangling() {
	if m == nil {
		return
	}
	m.dangling.Inc()
}

func (m *Metrics) incHistoryFailure() {
	if m == nil {
		return
	}
	m.historyFailures.Inc()
}
