package pipeline

import (
	"context"
	"encoding/json"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/ppiankov/hopqa/internal/extract"
	"github.com/ppiankov/hopqa/internal/llm"
	"github.com/ppiankov/hopqa/internal/logging"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
	"go.uber.org/zap"
)

// Generate runs stage 1: one oracle call per source unit producing the
// candidate list.
func (p *Pipeline) Generate(ctx context.Context) (*report.Tally, error) {
	stage := p.layout.Generate
	units, err := p.sourceUnits()
	if err != nil {
		return nil, err
	}

	log, closeLog := p.stageLogger(stage)
	defer closeLog()

	handler := func(ctx context.Context, unit string) report.UnitOutcome {
		return p.generateUnit(ctx, unit, log)
	}
	return finish(ctx, p.runUnits(ctx, stage, units, p.cfg.Concurrency.Workers, handler, log))
}

func (p *Pipeline) generateUnit(ctx context.Context, unit string, log *zap.Logger) report.UnitOutcome {
	stage := p.layout.Generate
	buf := logging.NewBuffered(log, unit)
	defer buf.Flush()

	outcome := report.UnitOutcome{Unit: unit}
	outPath := stage.PassedPath(unit)
	if artifact.Exists(outPath) {
		buf.Info("output exists, skipping")
		outcome.Status = report.StatusSkipped
		return outcome
	}

	src, err := artifact.LoadSourceUnit(p.cfg.Paths.CaptionDir, unit)
	if err != nil {
		buf.Error("load captions failed", zap.Error(err))
		outcome.Status = report.StatusFailed
		outcome.Err = err
		return outcome
	}
	if len(src.Segments) == 0 {
		buf.Warn("caption file has no segments")
		outcome.Status = report.StatusNoInput
		return outcome
	}

	buf.Info("generating candidates", zap.Int("segments", len(src.Segments)))

	text, ok := p.text.Invoke(ctx, llm.Call{
		Model: p.cfg.Models.Generation,
		Messages: []llm.Message{
			llm.SystemMessage(generationSystemPrompt),
			llm.UserMessage(generationPrompt(src.Context())),
		},
		Temperature: p.cfg.Generation.Temperature,
		MaxTokens:   p.cfg.Generation.MaxTokens,
		Validate:    extract.LooksLikeJSONArray,
		Log:         buf,
	})
	if !ok {
		if err := ctx.Err(); err != nil {
			buf.Warn("cancelled, unit left unwritten")
			outcome.Status = report.StatusFailed
			outcome.Err = err
			return outcome
		}
		buf.Error("generation failed, retries exhausted")
		p.recordFailedUnit(unit, buf)
		outcome.Status = report.StatusFailed
		return outcome
	}

	items := decodeCandidates(extract.RecoverQuestions(text), buf)
	if len(items) == 0 {
		rawPath := stage.Path(unit + artifact.ErrorRawSuffix)
		if err := artifact.WriteText(rawPath, text); err != nil {
			buf.Error("write raw response failed", zap.Error(err))
		}
		buf.Error("no candidates recovered, raw response saved", zap.String("path", rawPath))
		p.recordFailedUnit(unit, buf)
		outcome.Status = report.StatusFailed
		return outcome
	}

	if err := artifact.SaveCandidates(outPath, items); err != nil {
		buf.Error("save candidates failed", zap.Error(err))
		outcome.Status = report.StatusFailed
		outcome.Err = err
		return outcome
	}

	buf.Info("candidates generated",
		zap.Int("count", len(items)),
		zap.Any("hop_distribution", report.HopDistribution(items)),
	)
	outcome.Status = report.StatusDone
	outcome.Total = len(items)
	outcome.Passed = len(items)
	return outcome
}

// decodeCandidates keeps every recovered record. Fields with the wrong shape
// are carried verbatim for the verification stages to judge.
func decodeCandidates(records []json.RawMessage, log logging.Sink) []model.Candidate {
	items := make([]model.Candidate, 0, len(records))
	for i, rec := range records {
		var c model.Candidate
		if err := json.Unmarshal(rec, &c); err != nil {
			log.Warn("dropping record that is not an object", zap.Int("record", i+1), zap.Error(err))
			continue
		}
		if raw, bad := c.Unparsed("evidence_slices"); bad {
			log.Warn("record has malformed evidence references", zap.Int("record", i+1), zap.ByteString("evidence_slices", raw))
		}
		if c.Category != "" && !c.Category.Valid() {
			log.Debug("record has an unknown category", zap.Int("record", i+1), zap.String("category", string(c.Category)))
		}
		items = append(items, c)
	}
	return items
}

func (p *Pipeline) recordFailedUnit(unit string, log logging.Sink) {
	path := p.layout.Generate.Path(artifact.FailedUnitsLog)
	if err := artifact.AppendLine(path, unit); err != nil {
		log.Error("append failed-units log failed", zap.Error(err))
	}
}
