package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the quiz engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	violations  prometheus.Counter
	refusals    prometheus.Counter
	rubricEdits prometheus.Counter
	released    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "submissions_total",
			Help:      "Attempts submitted, by termination reason.",
		}, []string{"reason"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "violations_total",
			Help:      "Page-hidden periods counted during attempts.",
		}),
		refusals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "pending_refusals_total",
			Help:      "Attempt starts refused because results are pending release.",
		}),
		rubricEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "rubric_edits_total",
			Help:      "Essay rubric criterion scores written by instructors.",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "released_submissions_total",
			Help:      "Submission records flipped to released.",
		}),
	}
	reg.MustRegister(m.submissions, m.violations, m.refusals, m.rubricEdits, m.released)
	return m
}

func (m *Metrics) Submitted(reason string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(reason).Inc()
}

func (m *Metrics) Violation() {
	if m == nil {
		return
	}
	m.violations.Inc()
}

func (m *Metrics) PendingRefusal() {
	if m == nil {
		return
	}
	m.refusals.Inc()
}

func (m *Metrics) RubricEdit() {
	if m == nil {
		return
	}
	m.rubricEdits.Inc()
}

func (m *Metrics) Released(n int) {
	if m == nil {
		return
	}
	m.released.Add(float64(n))
}
