package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/ppiankov/hopqa/internal/extract"
	"github.com/ppiankov/hopqa/internal/ledger"
	"github.com/ppiankov/hopqa/internal/llm"
	"github.com/ppiankov/hopqa/internal/logging"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Leakage runs stage 3 in three checkpointed phases: extraction, audit and
// reconciliation. Each phase is skipped when its checkpoint file exists.
func (p *Pipeline) Leakage(ctx context.Context) (*report.Tally, error) {
	in := p.layout.Dedup
	if err := requireDir(in.Dir); err != nil {
		return nil, err
	}

	work := p.layout.Leakage
	log, closeLog := p.stageLogger(work)
	defer closeLog()

	entries, review, err := p.extractForReview(log)
	if err != nil {
		return nil, err
	}

	bad, err := p.auditReview(ctx, review, log)
	if err != nil {
		return nil, err
	}

	tally, err := p.reconcile(entries, bad, log)
	if err != nil {
		return nil, err
	}
	tally.Log(log)
	return tally, nil
}

// extractForReview numbers every stage 2 candidate globally, in sorted file
// order then in-file order, starting at 1.
func (p *Pipeline) extractForReview(log *zap.Logger) ([]model.ContextEntry, []model.ReviewRecord, error) {
	in := p.layout.Dedup
	work := p.layout.Leakage
	fullPath := work.Path(artifact.FullContextFile)
	reviewPath := work.Path(artifact.ReviewFile)

	if artifact.Exists(fullPath) && artifact.Exists(reviewPath) {
		var entries []model.ContextEntry
		if err := artifact.LoadJSON(fullPath, &entries); err != nil {
			return nil, nil, err
		}
		var review []model.ReviewRecord
		if err := artifact.LoadJSON(reviewPath, &review); err != nil {
			return nil, nil, err
		}
		log.Info("extraction checkpoint found, reusing", zap.Int("candidates", len(entries)))
		return entries, review, nil
	}

	units, err := artifact.ListUnits(in.Dir, in.PassedSuffix)
	if err != nil {
		return nil, nil, err
	}
	log.Info("extracting candidates for review", zap.Int("files", len(units)))

	entries := make([]model.ContextEntry, 0)
	review := make([]model.ReviewRecord, 0)
	id := 1
	for _, unit := range units {
		items, err := artifact.LoadCandidates(in.PassedPath(unit))
		if err != nil {
			log.Error("read candidates failed", zap.String("unit", unit), zap.Error(err))
			continue
		}
		for _, c := range items {
			entries = append(entries, model.ContextEntry{
				ID:       id,
				FileName: unit + in.PassedSuffix,
				UnitID:   unit,
				Item:     c,
			})
			review = append(review, model.ReviewRecord{
				ID:       id,
				Question: strings.TrimSpace(c.Question),
				Answer:   strings.TrimSpace(c.Answer),
			})
			id++
		}
	}

	if err := artifact.SaveJSON(fullPath, entries); err != nil {
		return nil, nil, err
	}
	if err := artifact.SaveJSON(reviewPath, review); err != nil {
		return nil, nil, err
	}
	log.Info("extraction complete", zap.Int("candidates", len(entries)))
	return entries, review, nil
}

// auditReview asks the oracle, batch by batch, which records leak their
// answer. A failed batch contributes nothing. The quarantine set is saved
// only after every batch has been judged.
func (p *Pipeline) auditReview(ctx context.Context, review []model.ReviewRecord, log *zap.Logger) (*ledger.QuarantineSet, error) {
	path := p.layout.Leakage.Path(artifact.QuarantineFile)
	if artifact.Exists(path) {
		bad, err := ledger.LoadQuarantine(path)
		if err != nil {
			return nil, err
		}
		log.Info("quarantine checkpoint found, skipping audit", zap.Int("quarantined", bad.Len()))
		return bad, nil
	}

	batches := chunkReview(review, p.cfg.Leakage.BatchSize)
	log.Info("auditing for answer leakage",
		zap.Int("candidates", len(review)),
		zap.Int("batches", len(batches)),
	)

	bad := ledger.NewQuarantineSet()
	var mu sync.Mutex
	var done atomic.Int64
	every := int64(p.cfg.Leakage.ProgressEvery)
	if every <= 0 {
		every = 10
	}

	workers := p.cfg.Concurrency.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, batch := range batches {
		g.Go(func() error {
			ids := p.auditBatch(gctx, i, batch, log)
			mu.Lock()
			bad.Add(ids...)
			mu.Unlock()

			if n := done.Add(1); n%every == 0 || n == int64(len(batches)) {
				progress := logging.NewBuffered(log, "progress")
				progress.Info("audit progress", zap.Int64("done", n), zap.Int("batches", len(batches)))
				progress.Flush()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := bad.Save(path); err != nil {
		return nil, err
	}
	log.Info("audit complete", zap.Int("quarantined", bad.Len()))
	return bad, nil
}

func chunkReview(review []model.ReviewRecord, size int) [][]model.ReviewRecord {
	if size <= 0 {
		size = 10
	}
	var out [][]model.ReviewRecord
	for start := 0; start < len(review); start += size {
		end := start + size
		if end > len(review) {
			end = len(review)
		}
		out = append(out, review[start:end])
	}
	return out
}

type leakageVerdict struct {
	BadIDs []json.RawMessage `json:"bad_ids"`
}

// auditBatch returns the flagged IDs that belong to batch
func (p *Pipeline) auditBatch(ctx context.Context, n int, batch []model.ReviewRecord, log *zap.Logger) []int {
	buf := logging.NewBuffered(log, fmt.Sprintf("batch-%d", n))
	defer buf.Flush()

	text, ok := p.text.Invoke(ctx, llm.Call{
		Model: p.cfg.Models.Leakage,
		Messages: []llm.Message{
			llm.SystemMessage(leakageSystemPrompt),
			llm.UserMessage(leakagePrompt(batch)),
		},
		Temperature: 0,
		MaxTokens:   p.cfg.Verify.MaxTokens,
		JSONMode:    true,
		Validate:    extract.LooksLikeJSONObject,
		Log:         buf,
	})
	if !ok {
		buf.Error("audit batch failed, keeping its candidates")
		return nil
	}

	var v leakageVerdict
	if !extract.DecodeObject(text, &v) {
		buf.Warn("audit response did not decode, keeping its candidates")
		return nil
	}

	own := make(map[int]bool, len(batch))
	for _, r := range batch {
		own[r.ID] = true
	}

	var ids []int
	for _, raw := range v.BadIDs {
		id, ok := parseID(raw)
		if !ok {
			continue
		}
		if !own[id] {
			buf.Debug("ignoring id outside batch", zap.Int("id", id))
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		buf.Info("leaking candidates flagged", zap.Ints("ids", ids))
	}
	return ids
}

// parseID accepts a JSON integer or a string of digits
func parseID(raw json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// reconcile archives every quarantined candidate, then rewrites every
// stage 2 file into the clean directory without the quarantined questions.
// Items are matched by trimmed question text within their file, so identical
// questions in one file are removed together.
//
// Archiving happens once: an incomplete checkpoint means the archive is
// already written and only the clean files are redone.
func (p *Pipeline) reconcile(entries []model.ContextEntry, bad *ledger.QuarantineSet, log *zap.Logger) (*report.Tally, error) {
	in := p.layout.Dedup
	work := p.layout.Leakage
	tally := report.NewTally(work.Name)

	units, err := artifact.ListUnits(in.Dir, in.PassedSuffix)
	if err != nil {
		return nil, err
	}

	markerPath := work.Path(artifact.ReconciledFile)
	var summary model.ReconcileSummary
	resumed := false
	if artifact.Exists(markerPath) {
		if err := artifact.LoadJSON(markerPath, &summary); err != nil {
			return nil, err
		}
		if summary.Complete {
			log.Info("reconciliation checkpoint found, skipping")
			for _, unit := range units {
				tally.Add(report.UnitOutcome{Unit: unit, Status: report.StatusSkipped})
				p.metrics.Unit(work.Name, string(report.StatusSkipped))
			}
			return tally, nil
		}
		resumed = true
		log.Info("incomplete reconciliation found, rewriting clean files", zap.Int("archived", summary.Archived))
	}

	removals, err := p.quarantineRemovals(entries, bad, !resumed, log)
	if err != nil {
		return nil, err
	}
	if !resumed {
		summary = model.ReconcileSummary{Quarantined: bad.Len(), Archived: removals.archived}
		if err := artifact.SaveJSON(markerPath, summary); err != nil {
			return nil, err
		}
	}

	summary.Files, summary.Removed = 0, 0
	complete := true
	for _, unit := range units {
		outcome := p.cleanUnit(unit, removals.byFile[unit+in.PassedSuffix], log)
		tally.Add(outcome)
		p.metrics.Unit(work.Name, string(outcome.Status))
		p.metrics.Items(work.Name, outcome.Passed, outcome.Failed)
		if outcome.Status != report.StatusDone {
			complete = false
			continue
		}
		summary.Files++
		summary.Removed += outcome.Failed
	}

	if !complete {
		log.Warn("reconciliation incomplete, failed files are retried on the next run",
			zap.Strings("failed", tally.FailedUnits()),
		)
		return tally, nil
	}

	summary.Complete = true
	if err := artifact.SaveJSON(markerPath, summary); err != nil {
		return nil, err
	}
	log.Info("reconciliation complete",
		zap.Int("files", summary.Files),
		zap.Int("removed", summary.Removed),
	)
	return tally, nil
}

type removalPlan struct {
	byFile   map[string]map[string]bool
	archived int
}

// quarantineRemovals maps each quarantined id to its file and trimmed
// question. With archive set, each quarantined candidate is also appended
// to the archive ledger.
func (p *Pipeline) quarantineRemovals(entries []model.ContextEntry, bad *ledger.QuarantineSet, archive bool, log *zap.Logger) (removalPlan, error) {
	plan := removalPlan{byFile: make(map[string]map[string]bool)}

	byID := make(map[int]model.ContextEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	var arch *ledger.ArchiveLedger
	archivePath := p.layout.Leakage.Path(artifact.ArchiveFile)
	if archive {
		var err error
		if arch, err = ledger.LoadArchive(archivePath); err != nil {
			return plan, err
		}
	}

	for _, id := range bad.Sorted() {
		e, ok := byID[id]
		if !ok {
			log.Warn("quarantined id not in extraction ledger", zap.Int("id", id))
			continue
		}
		if plan.byFile[e.FileName] == nil {
			plan.byFile[e.FileName] = make(map[string]bool)
		}
		plan.byFile[e.FileName][strings.TrimSpace(e.Item.Question)] = true

		if arch == nil {
			continue
		}
		if _, err := arch.Append(e.Item); err != nil {
			return plan, err
		}
		plan.archived++
	}

	if plan.archived > 0 {
		if err := arch.Save(archivePath); err != nil {
			return plan, err
		}
		log.Info("archived leaking candidates", zap.Int("count", plan.archived), zap.Int("archive_size", arch.Len()))
	}
	return plan, nil
}

// cleanUnit writes one stage 2 file to the clean directory minus removed
// questions. Files without removals are still rewritten.
func (p *Pipeline) cleanUnit(unit string, removed map[string]bool, log *zap.Logger) report.UnitOutcome {
	in := p.layout.Dedup
	out := p.layout.Clean
	outcome := report.UnitOutcome{Unit: unit}

	items, err := artifact.LoadCandidates(in.PassedPath(unit))
	if err != nil {
		log.Error("read candidates failed", zap.String("unit", unit), zap.Error(err))
		outcome.Status = report.StatusFailed
		outcome.Err = err
		return outcome
	}

	kept := make([]model.Candidate, 0, len(items))
	for _, c := range items {
		if removed[strings.TrimSpace(c.Question)] {
			continue
		}
		kept = append(kept, c)
	}

	if err := artifact.SaveCandidates(out.PassedPath(unit), kept); err != nil {
		log.Error("write clean file failed", zap.String("unit", unit), zap.Error(err))
		outcome.Status = report.StatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = report.StatusDone
	outcome.Total = len(items)
	outcome.Passed = len(kept)
	outcome.Failed = len(items) - len(kept)
	return outcome
}
