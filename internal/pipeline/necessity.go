package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/hopqa/internal/extract"
	"github.com/ppiankov/hopqa/internal/llm"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
)

type necessityVerdict struct {
	MissingAnalysis string          `json:"missing_analysis"`
	Verdict         extract.Verdict `json:"verdict"`
}

// Necessity runs stage 5 over the logic-check survivors
func (p *Pipeline) Necessity(ctx context.Context) (*report.Tally, error) {
	if err := requireDir(p.layout.Logic.Dir); err != nil {
		return nil, err
	}
	units, err := p.sourceUnits()
	if err != nil {
		return nil, err
	}

	log, closeLog := p.stageLogger(p.layout.Necessity)
	defer closeLog()

	spec := filterSpec{
		In:       p.layout.Logic,
		Out:      p.layout.Necessity,
		Captions: true,
		Check:    p.checkNecessity,
	}
	handler := func(ctx context.Context, unit string) report.UnitOutcome {
		return p.filterUnit(ctx, spec, unit, log)
	}
	return finish(ctx, p.runUnits(ctx, spec.Out, units, p.cfg.Concurrency.Workers, handler, log))
}

// checkNecessity drops each reference in turn and asks whether the rest
// still answers the question. One sufficient subset rejects the candidate
// and no further subsets are tried.
func (p *Pipeline) checkNecessity(ctx context.Context, c *model.Candidate, scope unitScope) bool {
	if !checkEvidence(c, scope) {
		return false
	}
	refs := c.EvidenceSegments

	for i := range refs {
		subset := refs.Without(i)
		text, ok := p.text.Invoke(ctx, llm.Call{
			Model:       p.cfg.Models.Necessity,
			Messages:    []llm.Message{llm.UserMessage(necessityPrompt(c.Question, subset, len(refs), scope.Captions))},
			Temperature: p.cfg.Verify.Temperature,
			MaxTokens:   p.cfg.Verify.MaxTokens,
			Validate:    extract.LooksLikeJSONObject,
			Log:         scope.Log,
		})
		if !ok {
			c.FailureReason = ReasonOracleFailed
			return false
		}

		var v necessityVerdict
		if extract.DecodeObject(text, &v) {
			if v.Verdict == "SOLVABLE" {
				c.FailureReason = fmt.Sprintf("Solvable by subset %v: %s", []int(subset), v.MissingAnalysis)
				c.MissingAnalysis = v.MissingAnalysis
				return false
			}
			continue
		}

		// Last resort when the response will not decode
		if extract.TextMatch(text, "SOLVABLE", "UNSOLVABLE") {
			c.FailureReason = fmt.Sprintf("Solvable (text match) by subset %v", []int(subset))
			c.MissingAnalysis = "Text Match"
			return false
		}
	}
	return true
}
