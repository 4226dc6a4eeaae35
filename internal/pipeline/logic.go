package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/hopqa/internal/extract"
	"github.com/ppiankov/hopqa/internal/llm"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
	"github.com/ppiankov/hopqa/internal/validate"
	"go.uber.org/zap"
)

// Rejection reasons shared by the verification stages
const (
	ReasonTooFewRefs     = "Not enough evidence segments (<2)"
	ReasonMissingRefs    = "missing evidence"
	ReasonOracleFailed   = "API call failed (retries exhausted)"
	ReasonTextMatchLogic = "Text Match (No JSON)"
)

type logicVerdict struct {
	Reasoning string          `json:"reasoning"`
	Verdict   extract.Verdict `json:"verdict"`
}

// Logic runs stage 4 over the leakage-clean files
func (p *Pipeline) Logic(ctx context.Context) (*report.Tally, error) {
	if err := requireDir(p.layout.Clean.Dir); err != nil {
		return nil, err
	}
	units, err := p.sourceUnits()
	if err != nil {
		return nil, err
	}

	log, closeLog := p.stageLogger(p.layout.Logic)
	defer closeLog()

	spec := filterSpec{
		In:       p.layout.Clean,
		Out:      p.layout.Logic,
		Captions: true,
		Check:    p.checkLogic,
	}
	handler := func(ctx context.Context, unit string) report.UnitOutcome {
		return p.filterUnit(ctx, spec, unit, log)
	}
	return finish(ctx, p.runUnits(ctx, spec.Out, units, p.cfg.Concurrency.Workers, handler, log))
}

// checkEvidence applies the local evidence rules shared by stages 4 and 5.
// References that never decoded to segment indices count as missing.
func checkEvidence(c *model.Candidate, scope unitScope) bool {
	if raw, bad := c.Unparsed("evidence_slices"); bad {
		scope.Log.Debug("evidence references unreadable", zap.ByteString("refs", raw))
		c.FailureReason = ReasonMissingRefs
		return false
	}
	if !validate.EnoughDistinct(c.EvidenceSegments) {
		c.FailureReason = ReasonTooFewRefs
		return false
	}
	if missing := validate.MissingRefs(c.EvidenceSegments, scope.Captions); len(missing) > 0 {
		scope.Log.Debug("evidence segments missing", zap.Ints("refs", missing))
		c.FailureReason = ReasonMissingRefs
		return false
	}
	return true
}

func (p *Pipeline) checkLogic(ctx context.Context, c *model.Candidate, scope unitScope) bool {
	if !checkEvidence(c, scope) {
		return false
	}

	text, ok := p.text.Invoke(ctx, llm.Call{
		Model:       p.cfg.Models.Logic,
		Messages:    []llm.Message{llm.UserMessage(logicPrompt(*c, scope.Captions))},
		Temperature: p.cfg.Verify.Temperature,
		MaxTokens:   p.cfg.Verify.MaxTokens,
		Validate:    extract.LooksLikeJSONObject,
		Log:         scope.Log,
	})
	if !ok {
		c.FailureReason = ReasonOracleFailed
		return false
	}

	var v logicVerdict
	if extract.DecodeObject(text, &v) {
		if v.Verdict == "PASS" {
			c.LogicCheckReasoning = v.Reasoning
			return true
		}
		reasoning := v.Reasoning
		if reasoning == "" {
			reasoning = "No reasoning provided"
		}
		c.FailureReason = "Oracle rejected: " + reasoning
		return false
	}

	// Last resort for a response that passed the shape check but still
	// does not decode.
	if extract.TextMatch(text, "PASS") {
		c.LogicCheckReasoning = ReasonTextMatchLogic
		return true
	}
	c.FailureReason = fmt.Sprintf("Parse error: %s", truncate(text, 200))
	return false
}
