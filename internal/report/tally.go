package report

import (
	"sort"
	"sync"

	"github.com/ppiankov/hopqa/internal/model"
	"go.uber.org/zap"
)

// UnitStatus describes how a stage handled one source unit
type UnitStatus string

const (
	StatusDone    UnitStatus = "done"     // Processed, outputs written
	StatusSkipped UnitStatus = "skipped"  // Output already present
	StatusNoInput UnitStatus = "no_input" // Upstream produced nothing for this unit
	StatusFailed  UnitStatus = "failed"   // Oracle exhausted or I/O error
)

// UnitOutcome is the per-unit result returned by a stage worker
type UnitOutcome struct {
	Unit   string
	Status UnitStatus
	Total  int
	Passed int
	Failed int
	Err    error
}

// GetError implements worker.Result
func (o UnitOutcome) GetError() error {
	return o.Err
}

// Tally aggregates unit outcomes for one stage run. Safe for concurrent Add.
type Tally struct {
	Stage string

	mu       sync.Mutex
	units    map[UnitStatus]int
	total    int
	passed   int
	failed   int
	failures []string
}

// NewTally creates an empty tally for stage
func NewTally(stage string) *Tally {
	return &Tally{Stage: stage, units: make(map[UnitStatus]int)}
}

// Add folds one unit outcome into the tally
func (t *Tally) Add(o UnitOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.units[o.Status]++
	t.total += o.Total
	t.passed += o.Passed
	t.failed += o.Failed
	if o.Status == StatusFailed {
		t.failures = append(t.failures, o.Unit)
	}
}

// Items returns total, passed and failed item counts
func (t *Tally) Items() (total, passed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.passed, t.failed
}

// Units returns how many units ended in status s
func (t *Tally) Units(s UnitStatus) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.units[s]
}

// FailedUnits returns the sorted IDs of units that failed
func (t *Tally) FailedUnits() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.failures...)
	sort.Strings(out)
	return out
}

// Retention is passed/total as a percentage, 0 when nothing was processed
func (t *Tally) Retention() float64 {
	total, passed, _ := t.Items()
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

// Log writes the end-of-stage summary
func (t *Tally) Log(logger *zap.Logger) {
	total, passed, failed := t.Items()
	logger.Info("stage complete",
		zap.String("stage", t.Stage),
		zap.Int("units_done", t.Units(StatusDone)),
		zap.Int("units_skipped", t.Units(StatusSkipped)),
		zap.Int("units_no_input", t.Units(StatusNoInput)),
		zap.Int("units_failed", t.Units(StatusFailed)),
		zap.Int("items_total", total),
		zap.Int("items_passed", passed),
		zap.Int("items_failed", failed),
		zap.Float64("retention_pct", t.Retention()),
	)
	if f := t.FailedUnits(); len(f) > 0 {
		logger.Warn("units failed", zap.String("stage", t.Stage), zap.Strings("units", f))
	}
}

// HopDistribution counts candidates per hop label ("2-Hop", "3-Hop", ...)
func HopDistribution(items []model.Candidate) map[string]int {
	dist := make(map[string]int)
	for _, c := range items {
		dist[c.HopLevel.String()]++
	}
	return dist
}
