package sync

// Download is one planned download: the canonical path and the overlay
// state it must be written in. Disabled downloads land at the dash-
// prefixed actual path so a locally disabled file stays disabled.
type Download struct {
	Path     string
	Disabled bool
}

// Plan is the set of operations that converges the mirror onto the
// remote manifest. Deletes hold actual relative paths.
type Plan struct {
	Downloads []Download
	Deletes   []string
}

// Empty reports whether the plan contains no work.
func (p Plan) Empty() bool {
	return len(p.Downloads) == 0 && len(p.Deletes) == 0
}

// Result summarizes an applied sync. Commit is the remote revision the
// mirror now corresponds to; it becomes the next baseline.
type Result struct {
	Downloaded int
	Deleted    int
	Renamed    int
	Skipped    int
	Commit     string
}

// VerificationReport lists discrepancies between the mirror and the
// current remote manifest. It is a read-only snapshot; applying it is
// a separate, explicit step.
type VerificationReport struct {
	Downloads []Download
	Deletes   []string
}

// HasDiscrepancies reports whether the mirror deviates from the remote.
func (r *VerificationReport) HasDiscrepancies() bool {
	return len(r.Downloads) > 0 || len(r.Deletes) > 0
}

// Status describes the remote head relative to the local baseline
// without mutating anything.
type Status struct {
	LatestCommit     string
	LatestCommitDate string
	BaselineCommit   string
	HasChanges       bool
}
