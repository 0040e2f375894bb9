package controller

import "github.com/tejusbharadwaj/simdash/internal/models"

// Phase identifies where a run is in its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUploading
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUploading:
		return "uploading"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a run in this phase is finished.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// RunState is a snapshot of the controller. Each phase has its own type
// carrying only the fields meaningful in that phase:
//
//	Idle, Uploading, Running, Completed, Failed
type RunState interface {
	Phase() Phase
	runState()
}

// Idle is the initial state.
type Idle struct{}

// Uploading is reported while the request body is being sent.
type Uploading struct {
	Progress int // percent, 0-100
}

// Running means the service accepted the job and results are being polled.
type Running struct {
	RunID string
}

// Completed holds the parsed result series.
type Completed struct {
	RunID  string
	Series []models.Sample
}

// Failed holds the message to show the user. RunID is empty when the
// submission itself failed.
type Failed struct {
	RunID string
	Err   string
}

func (Idle) Phase() Phase      { return PhaseIdle }
func (Uploading) Phase() Phase { return PhaseUploading }
func (Running) Phase() Phase   { return PhaseRunning }
func (Completed) Phase() Phase { return PhaseCompleted }
func (Failed) Phase() Phase    { return PhaseFailed }

func (Idle) runState()      {}
func (Uploading) runState() {}
func (Running) runState()   {}
func (Completed) runState() {}
func (Failed) runState()    {}

// RunIDOf returns the run id carried by s, if any.
func RunIDOf(s RunState) string {
	switch st := s.(type) {
	case Running:
		return st.RunID
	case Completed:
		return st.RunID
	case Failed:
		return st.RunID
	default:
		return ""
	}
}

func copyState(s RunState) RunState {
	if c, ok := s.(Completed); ok {
		series := make([]models.Sample, len(c.Series))
		copy(series, c.Series)
		c.Series = series
		return c
	}
	return s
}
