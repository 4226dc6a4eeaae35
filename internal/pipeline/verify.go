package pipeline

import (
	"context"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/ppiankov/hopqa/internal/logging"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
	"go.uber.org/zap"
)

// unitScope is what a per-candidate check sees of its source unit
type unitScope struct {
	Unit     string
	Captions map[int]string // nil unless the stage asked for captions
	Log      *logging.Buffered
}

// checkFunc judges one candidate. On rejection it sets FailureReason and
// returns false. It must not return early on errors; every failure is a
// rejection.
type checkFunc func(ctx context.Context, c *model.Candidate, scope unitScope) bool

// filterSpec describes a stage that reads the previous stage's passed file
// for a unit and splits it into passed and failed files.
type filterSpec struct {
	In       artifact.Stage
	Out      artifact.Stage
	Captions bool
	Check    checkFunc
}

// filterUnit runs spec.Check over every candidate of one unit. Outputs are
// written only when every candidate was judged.
func (p *Pipeline) filterUnit(ctx context.Context, spec filterSpec, unit string, log *zap.Logger) report.UnitOutcome {
	buf := logging.NewBuffered(log, unit)
	defer buf.Flush()

	outcome := report.UnitOutcome{Unit: unit}
	inPath := spec.In.PassedPath(unit)
	outPath := spec.Out.PassedPath(unit)

	if !artifact.Exists(inPath) {
		buf.Warn("input not found, skipping", zap.String("path", inPath))
		outcome.Status = report.StatusNoInput
		return outcome
	}
	if artifact.Exists(outPath) {
		buf.Info("output exists, skipping")
		outcome.Status = report.StatusSkipped
		return outcome
	}

	scope := unitScope{Unit: unit, Log: buf}
	if spec.Captions {
		src, err := artifact.LoadSourceUnit(p.cfg.Paths.CaptionDir, unit)
		if err != nil {
			buf.Error("load captions failed", zap.Error(err))
			outcome.Status = report.StatusFailed
			outcome.Err = err
			return outcome
		}
		scope.Captions = src.SegmentMap()
	}

	items, err := artifact.LoadCandidates(inPath)
	if err != nil {
		buf.Error("load candidates failed", zap.Error(err))
		outcome.Status = report.StatusFailed
		outcome.Err = err
		return outcome
	}
	if len(items) == 0 {
		buf.Info("no candidates, skipping")
		outcome.Status = report.StatusNoInput
		return outcome
	}

	buf.Info("verifying candidates", zap.Int("count", len(items)))

	passed := make([]model.Candidate, 0, len(items))
	var failed []model.Candidate
	for i := range items {
		if err := ctx.Err(); err != nil {
			buf.Warn("cancelled, unit left unwritten", zap.Int("judged", i))
			outcome.Status = report.StatusFailed
			outcome.Err = err
			return outcome
		}

		c := items[i]
		if spec.Check(ctx, &c, scope) {
			buf.Debug("candidate passed", zap.Int("index", i+1))
			passed = append(passed, c)
			continue
		}
		buf.Info("candidate rejected",
			zap.Int("index", i+1),
			zap.String("reason", truncate(c.FailureReason, 80)),
		)
		failed = append(failed, c)
	}

	// The passed file marks the unit done, so it is written last.
	if len(failed) > 0 && spec.Out.FailedSuffix != "" {
		if err := artifact.SaveCandidates(spec.Out.FailedPath(unit), failed); err != nil {
			buf.Error("save rejected candidates failed, unit left unwritten", zap.Error(err))
			outcome.Status = report.StatusFailed
			outcome.Err = err
			return outcome
		}
		buf.Info("saved rejected candidates", zap.Int("count", len(failed)))
	}
	if err := artifact.SaveCandidates(outPath, passed); err != nil {
		buf.Error("save passed failed", zap.Error(err))
		outcome.Status = report.StatusFailed
		outcome.Err = err
		return outcome
	}

	buf.Info("unit done",
		zap.Int("passed", len(passed)),
		zap.Int("total", len(items)),
	)
	outcome.Status = report.StatusDone
	outcome.Total = len(items)
	outcome.Passed = len(passed)
	outcome.Failed = len(failed)
	return outcome
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
