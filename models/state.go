package models

// Phase is a pipeline lifecycle step.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseConfirming  Phase = "confirming"
	PhaseFetching    Phase = "fetching"
	PhaseDownloading Phase = "downloading"
	PhaseAssembling  Phase = "assembling"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Terminal reports whether the phase only leaves through a restart.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// PipelineState is the progress snapshot exposed to callers.
type PipelineState struct {
	Phase         Phase  `json:"phase"`
	CurrentIndex  int    `json:"currentIndex"`
	TotalCount    int    `json:"totalCount"`
	Progress      int    `json:"progress"`
	StatusMessage string `json:"statusMessage"`
}

// RunResult describes a finished pipeline run.
type RunResult struct {
	Filename      string
	Archive       []byte
	Records       []*Record
	Skipped       []Identifier
	AssetFailures int
	Strategy      string
}
