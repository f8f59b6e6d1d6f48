package sync

// Progress stages emitted during a sync run.
const (
	StageFetching    = "fetching"
	StageScanning    = "scanning"
	StageComparing   = "comparing"
	StageSyncing     = "syncing"
	StageDownloading = "downloading"
	StageDeleting    = "deleting"
	StageCleanup     = "cleanup"
	StageVerifying   = "verifying"
	StageComplete    = "complete"
)

// Progress is one human-readable step notification. Current and Total
// are zero for indeterminate steps; otherwise Current <= Total.
type Progress struct {
	Stage   string
	Message string
	Current int
	Total   int
}

// Reporter receives progress notifications. Delivery is fire-and-
// forget: a nil Reporter is valid and a Reporter must never block or
// fail the operation.
type Reporter func(Progress)

// emit delivers a progress notification if a reporter is configured.
func (e *Engine) emit(stage, message string, current, total int) {
	if e.report == nil {
		return
	}
	e.report(Progress{Stage: stage, Message: message, Current: current, Total: total})
}
