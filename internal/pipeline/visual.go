package pipeline

import (
	"context"

	"github.com/ppiankov/hopqa/internal/extract"
	"github.com/ppiankov/hopqa/internal/llm"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
	"github.com/ppiankov/hopqa/internal/worker"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Visual verification rejection reasons
const (
	ReasonNoRefs         = "no evidence segments"
	ReasonNoMedia        = "no media found"
	ReasonVisualAPIError = "API error: " + ReasonOracleFailed
	ReasonVisualParse    = "JSON parse error"
)

type visualVerdict struct {
	Answerable         extract.Flag `json:"verdict_is_answerable"`
	UnanswerableReason string       `json:"unanswerable_reason"`
	Correct            extract.Flag `json:"verdict_is_correct"`
	RefinedAnswer      string       `json:"refined_answer"`
	VisualProof        string       `json:"visual_proof"`
}

// Visual runs stage 6 against the media clips with the vision gateway
func (p *Pipeline) Visual(ctx context.Context) (*report.Tally, error) {
	if p.vision == nil {
		return nil, eris.New("visual verification needs a vision oracle")
	}
	if err := requireDir(p.layout.Necessity.Dir); err != nil {
		return nil, err
	}
	units, err := p.sourceUnits()
	if err != nil {
		return nil, err
	}

	log, closeLog := p.stageLogger(p.layout.Visual)
	defer closeLog()

	spec := filterSpec{
		In:    p.layout.Necessity,
		Out:   p.layout.Visual,
		Check: p.checkVisual,
	}
	handler := func(ctx context.Context, unit string) report.UnitOutcome {
		return p.filterUnit(ctx, spec, unit, log)
	}
	return finish(ctx, p.runUnits(ctx, spec.Out, units, p.cfg.Concurrency.VideoWorkers, handler, log))
}

func (p *Pipeline) checkVisual(ctx context.Context, c *model.Candidate, scope unitScope) bool {
	refs := c.EvidenceSegments
	if len(refs) == 0 {
		c.FailureReason = ReasonNoRefs
		return false
	}

	parts := []llm.Part{llm.TextPart(visualPrompt(*c, len(refs)))}
	clips := 0
	for i, ref := range refs {
		path, ok := ResolveClip(p.cfg.Paths.VideoDir, scope.Unit, ref)
		if !ok {
			scope.Log.Warn("clip not found", zap.Int("segment", ref))
			continue
		}
		url, err := EncodeClip(path)
		if err != nil {
			scope.Log.Warn("clip unreadable", zap.Int("segment", ref), zap.Error(err))
			continue
		}
		parts = append(parts, llm.TextPart(clipHeader(i+1, len(refs), ref)), llm.VideoPart(url))
		clips++
	}
	if clips == 0 {
		c.FailureReason = ReasonNoMedia
		return false
	}

	scope.Log.Debug("sending clips", zap.Int("clips", clips), zap.Int("refs", len(refs)))

	delay := p.cfg.Visual.CallDelay
	text, ok := p.vision.Invoke(ctx, llm.Call{
		Model:       p.cfg.Models.Visual,
		Messages:    []llm.Message{{Role: llm.RoleUser, Parts: parts}},
		Temperature: p.cfg.Visual.Temperature,
		MaxTokens:   p.cfg.Visual.MaxTokens,
		Validate:    extract.LooksLikeJSONObject,
		Log:         scope.Log,
		After:       func(ctx context.Context) { _ = worker.Sleep(ctx, delay) },
	})
	if !ok {
		c.FailureReason = ReasonVisualAPIError
		return false
	}

	var v visualVerdict
	if !extract.DecodeObject(text, &v) {
		c.FailureReason = ReasonVisualParse
		return false
	}

	if !v.Answerable {
		reason := v.UnanswerableReason
		if reason == "" {
			reason = "Unknown"
		}
		c.FailureReason = reason
		return false
	}

	if !v.Correct {
		c.OriginalAnswer = c.Answer
		if v.RefinedAnswer != "" {
			c.Answer = v.RefinedAnswer
		}
		c.VerdictMeta = model.VerdictRefined
		scope.Log.Info("answer refined from visuals")
	}
	c.VisualProof = v.VisualProof
	if c.VisualProof == "" {
		c.VisualProof = "Verified by vision oracle"
	}
	return true
}
