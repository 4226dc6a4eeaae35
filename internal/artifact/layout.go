package artifact

import (
	"path/filepath"
)

// Stage describes where one pipeline stage keeps its per-unit artifacts
type Stage struct {
	Name         string // Short name used in logs and metrics
	Dir          string
	PassedSuffix string
	FailedSuffix string // Empty when the stage writes no failed file
}

// PassedPath is <dir>/<unit><passed suffix>
func (s Stage) PassedPath(unit string) string {
	return filepath.Join(s.Dir, unit+s.PassedSuffix)
}

// FailedPath is <dir>/<unit><failed suffix>, or "" when the stage has none
func (s Stage) FailedPath(unit string) string {
	if s.FailedSuffix == "" {
		return ""
	}
	return filepath.Join(s.Dir, unit+s.FailedSuffix)
}

// Path joins name onto the stage directory
func (s Stage) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// LogPath is the per-stage log file
func (s Stage) LogPath() string {
	return filepath.Join(s.Dir, s.Name+".log")
}

// Layout is the full results tree
type Layout struct {
	Generate  Stage
	Dedup     Stage
	Leakage   Stage // Work dir for stage 3 checkpoints
	Clean     Stage // Stage 3 output: stage 2 files with leaked items removed
	Logic     Stage
	Necessity Stage
	Visual    Stage
}

// Stage 3 checkpoint file names
const (
	FullContextFile = "all_qs_full_context.json"
	ReviewFile      = "qas_for_review.json"
	QuarantineFile  = "bad_qa_ids.json"
	ArchiveFile     = "wrong_question.json"
	ReconciledFile  = "reconciled.json"

	FailedUnitsLog = "failed_units.log"
	ErrorRawSuffix = "_error_raw.txt"
)

// NewLayout builds the standard layout under root
func NewLayout(root string) Layout {
	return Layout{
		Generate: Stage{
			Name:         "qa_generation",
			Dir:          filepath.Join(root, "step1_qa_generation"),
			PassedSuffix: "_multihop_qa.json",
		},
		Dedup: Stage{
			Name:         "deduplication",
			Dir:          filepath.Join(root, "step2_deduplication"),
			PassedSuffix: "_deduplicated.json",
			FailedSuffix: "_failed_deduplication.json",
		},
		Leakage: Stage{
			Name: "leakage_check",
			Dir:  filepath.Join(root, "step3_leakage_check"),
		},
		Clean: Stage{
			Name:         "leakage_clean",
			Dir:          filepath.Join(root, "step3_clean"),
			PassedSuffix: "_deduplicated.json",
		},
		Logic: Stage{
			Name:         "logic_check",
			Dir:          filepath.Join(root, "step4_logic_check"),
			PassedSuffix: "_passed_logic_check.json",
			FailedSuffix: "_failed_logic_check.json",
		},
		Necessity: Stage{
			Name:         "necessity_check",
			Dir:          filepath.Join(root, "step5_necessity_check"),
			PassedSuffix: "_passed_necessity_check.json",
			FailedSuffix: "_failed_necessity_check.json",
		},
		Visual: Stage{
			Name:         "video_verification",
			Dir:          filepath.Join(root, "step6_video_verification"),
			PassedSuffix: "_passed_video_check.json",
			FailedSuffix: "_failed_video_check.json",
		},
	}
}
