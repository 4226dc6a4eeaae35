package worker

import (
	"context"
	"sort"

	"github.com/ppiankov/hopqa/internal/report"
)

// UnitHandler processes one source unit end to end for a stage. It must not
// panic or return early on item-level problems; everything is reported
// through the outcome.
type UnitHandler interface {
	ProcessUnit(ctx context.Context, unit string) report.UnitOutcome
}

// UnitHandlerFunc adapts a function to UnitHandler
type UnitHandlerFunc func(ctx context.Context, unit string) report.UnitOutcome

// ProcessUnit calls f
func (f UnitHandlerFunc) ProcessUnit(ctx context.Context, unit string) report.UnitOutcome {
	return f(ctx, unit)
}

// unitJob adapts a unit to the pool's Job interface
type unitJob struct {
	unit    string
	handler UnitHandler
}

// Execute runs the handler for one unit
func (j *unitJob) Execute(ctx context.Context) Result {
	return j.handler.ProcessUnit(ctx, j.unit)
}

// BatchProcessor fans a stage out across source units
type BatchProcessor struct {
	handler     UnitHandler
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(handler UnitHandler, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		handler:     handler,
		concurrency: concurrency,
	}
}

// ProcessUnits runs the handler for every unit and returns outcomes sorted
// by unit ID. Units never submitted because ctx was cancelled are absent.
func (b *BatchProcessor) ProcessUnits(ctx context.Context, units []string) []report.UnitOutcome {
	if len(units) == 0 {
		return []report.UnitOutcome{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, unit := range units {
		if !pool.Submit(&unitJob{unit: unit, handler: b.handler}) {
			break
		}
	}

	results := pool.Wait()

	outcomes := make([]report.UnitOutcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, r.(report.UnitOutcome))
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Unit < outcomes[j].Unit })

	return outcomes
}
