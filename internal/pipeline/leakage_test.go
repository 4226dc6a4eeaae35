package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/ppiankov/hopqa/internal/ledger"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func seedLeakageInputs(t *testing.T, p *Pipeline) {
	t.Helper()
	writeStage(t, p.layout.Dedup, "fileA",
		model.Candidate{Question: "Is the sky blue? The sky is blue.", Answer: "yes", EvidenceSegments: model.SegmentRefs{1, 2}},
		model.Candidate{Question: "Who opens the box?", Answer: "the man", EvidenceSegments: model.SegmentRefs{2, 3}},
	)
	writeStage(t, p.layout.Dedup, "fileB",
		model.Candidate{Question: "What falls after the door slams?", Answer: "a vase", EvidenceSegments: model.SegmentRefs{4, 7}},
	)
	// failed siblings are never audited
	require.NoError(t, artifact.SaveCandidates(p.layout.Dedup.FailedPath("fileA"), []model.Candidate{
		{Question: "dup", EvidenceSegments: model.SegmentRefs{1, 1}},
	}))
}

func TestLeakage_ReconciliationRemovesQuarantinedQuestion(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) {
		return `{"bad_ids": [1, "99"]}`, nil
	}}
	p, _ := newTestPipeline(t, oracle)
	seedLeakageInputs(t, p)

	tally, err := p.Leakage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, oracle.calls())
	total, passed, failed := tally.Items()
	assert.Equal(t, [3]int{3, 2, 1}, [3]int{total, passed, failed})

	var review []model.ReviewRecord
	require.NoError(t, artifact.LoadJSON(p.layout.Leakage.Path(artifact.ReviewFile), &review))
	require.Len(t, review, 3)
	assert.Equal(t, 1, review[0].ID)
	assert.Equal(t, "What falls after the door slams?", review[2].Question)

	bad, err := ledger.LoadQuarantine(p.layout.Leakage.Path(artifact.QuarantineFile))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, bad.Sorted())

	assert.Equal(t, []string{"Who opens the box?"}, questions(readStage(t, p.layout.Clean.PassedPath("fileA"))))

	origB, err := os.ReadFile(p.layout.Dedup.PassedPath("fileB"))
	require.NoError(t, err)
	cleanB, err := os.ReadFile(p.layout.Clean.PassedPath("fileB"))
	require.NoError(t, err)
	assert.JSONEq(t, string(origB), string(cleanB))

	archive, err := ledger.LoadArchive(p.layout.Leakage.Path(artifact.ArchiveFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, archive.Keys())
	raw, _ := archive.Get("1")
	var archived model.Candidate
	require.NoError(t, json.Unmarshal(raw, &archived))
	assert.Equal(t, "Is the sky blue? The sky is blue.", archived.Question)

	assert.FileExists(t, p.layout.Leakage.Path(artifact.ReconciledFile))
}

func TestLeakage_RerunReusesCheckpoints(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) {
		return `{"bad_ids": [1]}`, nil
	}}
	p, _ := newTestPipeline(t, oracle)
	seedLeakageInputs(t, p)

	_, err := p.Leakage(context.Background())
	require.NoError(t, err)
	archivePath := p.layout.Leakage.Path(artifact.ArchiveFile)
	before, err := os.ReadFile(archivePath)
	require.NoError(t, err)

	_, err = p.Leakage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, oracle.calls())

	after, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLeakage_FailedCleanFileIsRetriedWithoutRearchiving(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) {
		return `{"bad_ids": [1]}`, nil
	}}
	p, _ := newTestPipeline(t, oracle)
	seedLeakageInputs(t, p)

	blocker := p.layout.Clean.PassedPath("fileB")
	require.NoError(t, os.MkdirAll(blocker, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blocker, "keep"), nil, 0o644))

	tally, err := p.Leakage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fileB"}, tally.FailedUnits())

	markerPath := p.layout.Leakage.Path(artifact.ReconciledFile)
	var summary model.ReconcileSummary
	require.NoError(t, artifact.LoadJSON(markerPath, &summary))
	assert.False(t, summary.Complete)
	assert.Equal(t, 1, summary.Archived)

	require.NoError(t, os.RemoveAll(blocker))
	tally, err = p.Leakage(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tally.FailedUnits())
	assert.Equal(t, 1, oracle.calls())
	assert.Equal(t, []string{"What falls after the door slams?"}, questions(readStage(t, blocker)))
	assert.Equal(t, []string{"Who opens the box?"}, questions(readStage(t, p.layout.Clean.PassedPath("fileA"))))

	require.NoError(t, artifact.LoadJSON(markerPath, &summary))
	assert.True(t, summary.Complete)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Removed)

	archive, err := ledger.LoadArchive(p.layout.Leakage.Path(artifact.ArchiveFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, archive.Keys())
}

func TestLeakage_ProgressLinesGoThroughFlushLock(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) {
		return `{"bad_ids": []}`, nil
	}}
	p, _ := newTestPipeline(t, oracle)
	core, logs := observer.New(zapcore.InfoLevel)
	p.logger = zap.New(core)
	p.cfg.Leakage.BatchSize = 1
	p.cfg.Leakage.ProgressEvery = 1
	seedLeakageInputs(t, p)

	_, err := p.Leakage(context.Background())
	require.NoError(t, err)

	progress := logs.FilterMessage("audit progress").All()
	require.Len(t, progress, 3)
	for _, e := range progress {
		assert.Equal(t, "progress", e.ContextMap()["unit"])
	}
}

func TestLeakage_ArchiveKeysKeepGrowingAcrossRuns(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) {
		return `{"bad_ids": [1]}`, nil
	}}
	p, _ := newTestPipeline(t, oracle)
	seedLeakageInputs(t, p)

	archivePath := p.layout.Leakage.Path(artifact.ArchiveFile)
	seed := ledger.NewArchiveLedger()
	_, err := seed.Append(model.Candidate{Question: "from an earlier run"})
	require.NoError(t, err)
	_, err = seed.Append(model.Candidate{Question: "also earlier"})
	require.NoError(t, err)
	require.NoError(t, seed.Save(archivePath))

	_, err = p.Leakage(context.Background())
	require.NoError(t, err)

	archive, err := ledger.LoadArchive(archivePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, archive.Keys())
	raw, _ := archive.Get("1")
	assert.Contains(t, string(raw), "from an earlier run")
}

func TestLeakage_FailedBatchKeepsCandidates(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) {
		return "", eris.New("timeout")
	}}
	p, _ := newTestPipeline(t, oracle)
	seedLeakageInputs(t, p)

	_, err := p.Leakage(context.Background())
	require.NoError(t, err)

	bad, err := ledger.LoadQuarantine(p.layout.Leakage.Path(artifact.QuarantineFile))
	require.NoError(t, err)
	assert.Equal(t, 0, bad.Len())
	assert.Len(t, readStage(t, p.layout.Clean.PassedPath("fileA")), 2)
	assert.NoFileExists(t, p.layout.Leakage.Path(artifact.ArchiveFile))
}

func TestLeakage_IdenticalQuestionsInOneFileRemovedTogether(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) {
		return `{"bad_ids": [2]}`, nil
	}}
	p, _ := newTestPipeline(t, oracle)
	writeStage(t, p.layout.Dedup, "vid",
		model.Candidate{Question: "Same text?", Answer: "one"},
		model.Candidate{Question: "  Same text?  ", Answer: "two"},
		model.Candidate{Question: "Different", Answer: "three"},
	)

	_, err := p.Leakage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Different"}, questions(readStage(t, p.layout.Clean.PassedPath("vid"))))
}

func TestLeakage_BatchesAreSized(t *testing.T) {
	oracle := &fakeOracle{respond: func(string) (string, error) { return `{"bad_ids": []}`, nil }}
	p, _ := newTestPipeline(t, oracle)
	p.cfg.Leakage.BatchSize = 2

	items := make([]model.Candidate, 5)
	for i := range items {
		items[i] = model.Candidate{Question: string(rune('a' + i)), Answer: "x"}
	}
	writeStage(t, p.layout.Dedup, "vid", items...)

	_, err := p.Leakage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, oracle.calls())
}

func TestLeakage_MissingInputDir(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeOracle{})
	_, err := p.Leakage(context.Background())
	assert.True(t, eris.Is(err, ErrInputMissing))
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{`7`, 7, true},
		{`"12"`, 12, true},
		{`" 3 "`, 3, true},
		{`"x1"`, 0, false},
		{`"-4"`, 0, false},
		{`1.5`, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseID(json.RawMessage(tt.raw))
		assert.Equal(t, tt.ok, ok, tt.raw)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.raw)
		}
	}
}

func TestChunkReview(t *testing.T) {
	recs := make([]model.ReviewRecord, 7)
	chunks := chunkReview(recs, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, chunkReview(nil, 10))
}
