package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Recorder owns the pipeline's prometheus collectors. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	OracleAttempts *prometheus.CounterVec
	OracleCalls    *prometheus.CounterVec
	OracleDuration *prometheus.HistogramVec
	OracleTokens   *prometheus.CounterVec
	StageItems     *prometheus.CounterVec
	StageUnits     *prometheus.CounterVec
}

// NewRecorder builds and registers the collectors on a private registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		OracleAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hopqa_oracle_attempts_total",
				Help: "Oracle attempts by outcome (ok, error, rejected)",
			},
			[]string{"model", "outcome"},
		),
		OracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hopqa_oracle_calls_total",
				Help: "Gateway invocations by result (ok, exhausted, cached)",
			},
			[]string{"model", "result"},
		),
		OracleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hopqa_oracle_attempt_duration_seconds",
				Help:    "Duration of a single oracle attempt",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
			},
			[]string{"model"},
		),
		OracleTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hopqa_oracle_tokens_total",
				Help: "Tokens reported by the oracle backend",
			},
			[]string{"model"},
		),
		StageItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hopqa_stage_items_total",
				Help: "Candidates leaving a stage by outcome (passed, failed)",
			},
			[]string{"stage", "outcome"},
		),
		StageUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hopqa_stage_units_total",
				Help: "Source units handled by a stage, by status",
			},
			[]string{"stage", "status"},
		),
	}

	r.registry.MustRegister(
		r.OracleAttempts,
		r.OracleCalls,
		r.OracleDuration,
		r.OracleTokens,
		r.StageItems,
		r.StageUnits,
	)
	return r
}

// Attempt records one oracle attempt
func (r *Recorder) Attempt(model, outcome string, d time.Duration, tokens int) {
	if r == nil {
		return
	}
	r.OracleAttempts.WithLabelValues(model, outcome).Inc()
	r.OracleDuration.WithLabelValues(model).Observe(d.Seconds())
	if tokens > 0 {
		r.OracleTokens.WithLabelValues(model).Add(float64(tokens))
	}
}

// Call records the final result of one gateway invocation
func (r *Recorder) Call(model, result string) {
	if r == nil {
		return
	}
	r.OracleCalls.WithLabelValues(model, result).Inc()
}

// Items records candidates leaving a stage
func (r *Recorder) Items(stage string, passed, failed int) {
	if r == nil {
		return
	}
	r.StageItems.WithLabelValues(stage, "passed").Add(float64(passed))
	r.StageItems.WithLabelValues(stage, "failed").Add(float64(failed))
}

// Unit records one unit's status in a stage
func (r *Recorder) Unit(stage, status string) {
	if r == nil {
		return
	}
	r.StageUnits.WithLabelValues(stage, status).Inc()
}

// WriteTextfile dumps all collectors in the node_exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return eris.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
