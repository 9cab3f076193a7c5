package models

import "time"

// OperationType identifies the kind of git operation an event belongs to.
type OperationType string

const (
	OpCommit     OperationType = "commit"
	OpPush       OperationType = "push"
	OpPull       OperationType = "pull"
	OpFetch      OperationType = "fetch"
	OpMerge      OperationType = "merge"
	OpCheckout   OperationType = "checkout"
	OpInitialize OperationType = "initialize"
)

// Phase is the phase a git operation is in.
type Phase string

const (
	PhaseStarting     Phase = "starting"
	PhaseStagingFiles Phase = "staging_files"
	PhaseCommitting   Phase = "committing"
	PhaseCounting     Phase = "counting"
	PhaseCompressing  Phase = "compressing"
	PhaseWriting      Phase = "writing"
	PhaseReceiving    Phase = "receiving"
	PhaseResolving    Phase = "resolving"
	PhaseUnpacking    Phase = "unpacking"
	PhasePushing      Phase = "pushing"
	PhasePulling      Phase = "pulling"
	PhaseFetching     Phase = "fetching"
	PhaseMerging      Phase = "merging"
	PhaseCheckingOut  Phase = "checking_out"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// IsTerminal reports whether no further events follow this phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// OperationProgressEvent is a full snapshot of one git operation's state.
// Each event replaces the previous one with the same OperationID.
type OperationProgressEvent struct {
	OperationID      string        `json:"operationId"`
	OperationType    OperationType `json:"operationType"`
	Phase            Phase         `json:"phase"`
	Progress         *int          `json:"progress,omitempty"`
	Current          *int          `json:"current,omitempty"`
	Total            *int          `json:"total,omitempty"`
	BytesTransferred *int64        `json:"bytesTransferred,omitempty"`
	TransferSpeed    string        `json:"transferSpeed,omitempty"`
	Error            string        `json:"error,omitempty"`
	Message          string        `json:"message,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

// JobStatus is the lifecycle state of a document-processing job.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobSuperseded JobStatus = "superseded"
)

// JobEvent is a (possibly partial) update for one job. Nil fields were not
// supplied by the producer and leave the stored value untouched.
type JobEvent struct {
	JobID        string     `json:"jobId"`
	SourcePath   *string    `json:"sourcePath,omitempty"`
	Filename     *string    `json:"filename,omitempty"`
	Status       *JobStatus `json:"status,omitempty"`
	CurrentPhase *string    `json:"currentPhase,omitempty"`
	Message      *string    `json:"message,omitempty"`
	Error        *string    `json:"error,omitempty"`
	OutputPath   *string    `json:"outputPath,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Symlinks     []string   `json:"symlinks,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// StoredJob is the latest folded snapshot of a job.
type StoredJob struct {
	JobID        string     `json:"jobId"`
	SourcePath   string     `json:"sourcePath"`
	Filename     string     `json:"filename"`
	Status       JobStatus  `json:"status"`
	CurrentPhase string     `json:"currentPhase"`
	Message      string     `json:"message"`
	Error        string     `json:"error,omitempty"`
	OutputPath   string     `json:"outputPath,omitempty"`
	Category     string     `json:"category,omitempty"`
	Symlinks     []string   `json:"symlinks"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// Fold applies ev on top of j. Every field ev supplies overrides the stored
// one; fields ev leaves nil keep their previous value.
func (j StoredJob) Fold(ev JobEvent) StoredJob {
	j.JobID = ev.JobID
	if ev.SourcePath != nil {
		j.SourcePath = *ev.SourcePath
	}
	if ev.Filename != nil {
		j.Filename = *ev.Filename
	}
	if ev.Status != nil {
		j.Status = *ev.Status
	}
	if ev.CurrentPhase != nil {
		j.CurrentPhase = *ev.CurrentPhase
	}
	if ev.Message != nil {
		j.Message = *ev.Message
	}
	if ev.Error != nil {
		j.Error = *ev.Error
	}
	if ev.OutputPath != nil {
		j.OutputPath = *ev.OutputPath
	}
	if ev.Category != nil {
		j.Category = *ev.Category
	}
	if ev.Symlinks != nil {
		j.Symlinks = append([]string(nil), ev.Symlinks...)
	}
	if ev.Timestamp != nil {
		ts := *ev.Timestamp
		j.Timestamp = &ts
	}
	return j
}

// ConfigChange notifies that a file under the configuration root changed on
// disk outside the engine.
type ConfigChange struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// Ptr returns a pointer to v. It keeps partial event literals short.
func Ptr[T any](v T) *T {
	return &v
}
