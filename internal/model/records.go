package model

// ContextEntry ties a globally numbered candidate back to the file it came from.
// Stage 3 writes the full list as the full-context ledger.
type ContextEntry struct {
	ID       int       `json:"id"`
	FileName string    `json:"file_name"`
	UnitID   string    `json:"unit_id"`
	Item     Candidate `json:"original_item"`
}

// ReviewRecord is the minimal view of a candidate sent to the leakage auditor.
// Only question and answer are exposed so nothing else can leak into the audit.
type ReviewRecord struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ReconcileSummary is the checkpoint of the leakage reconciliation phase.
// It is first written right after archiving with Complete unset, then again
// with Complete set once every clean file has been written.
type ReconcileSummary struct {
	Quarantined int  `json:"quarantined"`
	Archived    int  `json:"archived"`
	Removed     int  `json:"removed"`
	Files       int  `json:"files"`
	Complete    bool `json:"complete"`
}
