package types

// Event is one sequenced status update belonging to a run. Events are
// immutable once published; ids are 1-based and strictly increasing per run.
type Event struct {
	// Per-run sequence id, starting at 1.
	// example: 3
	ID uint64 `json:"id" example:"3"`
	// Processing stage: queued, start, intermediate stages, complete, error.
	// example: master
	Stage string `json:"stage" example:"master"`
	// Human-readable progress detail.
	// example: applying loudness stage
	Detail string `json:"detail,omitempty" example:"applying loudness stage"`
	// Unix timestamp in fractional seconds.
	// example: 1700000000.25
	Timestamp float64 `json:"timestamp" example:"1700000000.25"`
	// Final artifact listing; attached to complete/error events only.
	Result *RunResult `json:"result,omitempty"`
}

// Terminal reports whether the event ends its run.
func (e Event) Terminal() bool { return TerminalStage(e.Stage) }

// TerminalStage reports whether stage is one of the two run-ending stages.
func TerminalStage(stage string) bool { return stage == StageComplete || stage == StageError }

// Well-known stages. The engine is free to emit intermediate stages
// (analyze, master, encode, ...) that the bus passes through untouched.
const (
	StageQueued   = "queued"
	StageStart    = "start"
	StageComplete = "complete"
	StageError    = "error"
)

// RunResult lists the final renditions a completed run produced.
type RunResult struct {
	Renditions []Rendition `json:"renditions"`
}

// Rendition is one finished output file in the rendition store.
type Rendition struct {
	// File name inside the run's output directory.
	// example: mix_V-warm_S80__4f2c1a9b3d.mp3
	Name string `json:"name" example:"mix_V-warm_S80__4f2c1a9b3d.mp3"`
	// Size in bytes.
	// example: 8388608
	Size int64 `json:"size" example:"8388608"`
}
