package pipeline

import (
	"context"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
	"github.com/ppiankov/hopqa/internal/validate"
	"go.uber.org/zap"
)

// ReasonDuplicateRefs marks a candidate that cites a segment more than once
const ReasonDuplicateRefs = "duplicate segment references"

// Dedup runs stage 2 over every stage 1 output, one unit at a time
func (p *Pipeline) Dedup(ctx context.Context) (*report.Tally, error) {
	in := p.layout.Generate
	if err := requireDir(in.Dir); err != nil {
		return nil, err
	}
	units, err := artifact.ListUnits(in.Dir, in.PassedSuffix)
	if err != nil {
		return nil, err
	}

	log, closeLog := p.stageLogger(p.layout.Dedup)
	defer closeLog()

	spec := filterSpec{
		In:    in,
		Out:   p.layout.Dedup,
		Check: checkDuplicates,
	}
	handler := func(ctx context.Context, unit string) report.UnitOutcome {
		return p.filterUnit(ctx, spec, unit, log)
	}
	return finish(ctx, p.runUnits(ctx, spec.Out, units, 1, handler, log))
}

func checkDuplicates(_ context.Context, c *model.Candidate, scope unitScope) bool {
	if dups := validate.DuplicateRefs(c.EvidenceSegments); len(dups) > 0 {
		scope.Log.Debug("duplicate references", zap.Ints("refs", dups))
		c.FailureReason = ReasonDuplicateRefs
		return false
	}
	return true
}
