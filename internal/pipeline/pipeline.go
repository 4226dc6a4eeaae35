package pipeline

import (
	"context"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/ppiankov/hopqa/internal/llm"
	"github.com/ppiankov/hopqa/internal/logging"
	"github.com/ppiankov/hopqa/internal/metrics"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/report"
	"github.com/ppiankov/hopqa/internal/worker"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrInputMissing is returned when a stage's required input directory does
// not exist. It is the only condition that halts a stage.
var ErrInputMissing = eris.New("required input directory is missing")

// Pipeline orchestrates the six curation stages over one results tree
type Pipeline struct {
	cfg     model.Config
	layout  artifact.Layout
	text    *llm.Gateway
	vision  *llm.Gateway
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithVision sets the gateway used by visual verification
func WithVision(g *llm.Gateway) Option {
	return func(p *Pipeline) { p.vision = g }
}

// WithLogger sets the process logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records stage outcomes
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline. text serves stages 1 to 5.
func NewPipeline(cfg model.Config, text *llm.Gateway, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		layout: artifact.NewLayout(cfg.Paths.ResultsDir),
		text:   text,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Layout returns the results tree the pipeline reads and writes
func (p *Pipeline) Layout() artifact.Layout {
	return p.layout
}

// Step is one named stage entry point
type Step struct {
	Name string
	Run  func(ctx context.Context) (*report.Tally, error)
}

// Steps returns the stages in execution order
func (p *Pipeline) Steps() []Step {
	return []Step{
		{Name: p.layout.Generate.Name, Run: p.Generate},
		{Name: p.layout.Dedup.Name, Run: p.Dedup},
		{Name: p.layout.Leakage.Name, Run: p.Leakage},
		{Name: p.layout.Logic.Name, Run: p.Logic},
		{Name: p.layout.Necessity.Name, Run: p.Necessity},
		{Name: p.layout.Visual.Name, Run: p.Visual},
	}
}

// Run executes every stage in order and stops at the first stage error
func (p *Pipeline) Run(ctx context.Context) ([]*report.Tally, error) {
	var tallies []*report.Tally
	for _, step := range p.Steps() {
		tally, err := step.Run(ctx)
		if tally != nil {
			tallies = append(tallies, tally)
		}
		if err != nil {
			return tallies, eris.Wrapf(err, "stage %s", step.Name)
		}
	}
	return tallies, nil
}

// stageLogger tags the process logger with the stage name and, when file
// logging is on, tees it into the stage's log file.
func (p *Pipeline) stageLogger(s artifact.Stage) (*zap.Logger, func()) {
	log := p.logger.With(zap.String("stage", s.Name))
	if !p.cfg.Log.ToFile {
		return log, func() {}
	}
	teed, closer, err := logging.WithFile(log, s.LogPath())
	if err != nil {
		log.Warn("stage log file unavailable", zap.Error(err))
		return log, func() {}
	}
	return teed, closer
}

// sourceUnits lists caption files in sorted order and applies the range
func (p *Pipeline) sourceUnits() ([]string, error) {
	dir := p.cfg.Paths.CaptionDir
	if !artifact.IsDir(dir) {
		return nil, eris.Wrapf(ErrInputMissing, "caption dir %s", dir)
	}
	units, err := artifact.ListUnits(dir, ".json")
	if err != nil {
		return nil, err
	}
	return artifact.SelectRange(units, p.cfg.Range.Start, p.cfg.Range.End), nil
}

// requireDir fails the stage when an upstream directory is absent
func requireDir(dir string) error {
	if !artifact.IsDir(dir) {
		return eris.Wrapf(ErrInputMissing, "input dir %s", dir)
	}
	return nil
}

// runUnits fans handler out over units and folds outcomes into a tally
func (p *Pipeline) runUnits(ctx context.Context, s artifact.Stage, units []string, workers int, handler worker.UnitHandlerFunc, log *zap.Logger) *report.Tally {
	log.Info("stage starting",
		zap.Int("units", len(units)),
		zap.Int("workers", workers),
	)

	tally := report.NewTally(s.Name)
	outcomes := worker.NewBatchProcessor(handler, workers).ProcessUnits(ctx, units)
	for _, o := range outcomes {
		tally.Add(o)
		p.metrics.Unit(s.Name, string(o.Status))
		p.metrics.Items(s.Name, o.Passed, o.Failed)
	}
	tally.Log(log)
	return tally
}

// finish returns ctx's error when the run was cancelled part way
func finish(ctx context.Context, tally *report.Tally) (*report.Tally, error) {
	if err := ctx.Err(); err != nil {
		return tally, err
	}
	return tally, nil
}
