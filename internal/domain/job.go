package domain

import (
	"time"
)

// JobID is a unique identifier for an acquisition job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobState represents the current state of an acquisition job.
type JobState string

const (
	JobStateCreated    JobState = "created"
	JobStateFetching   JobState = "fetching"
	JobStateAssembling JobState = "assembling"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateCleaned    JobState = "cleaned"
)

// IsTerminal returns true once the job has completed or failed.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCleaned
}

// MergeMode records how split streams were assembled.
type MergeMode string

const (
	MergeModeNone     MergeMode = ""
	MergeModeCopy     MergeMode = "copy"
	MergeModeReencode MergeMode = "reencode_audio"
)

// AcquisitionJob is one download and assembly attempt.
type AcquisitionJob struct {
	ID         JobID
	ScratchDir string
	SourceID   string
	Quality    Quality
	Kind       CandidateKind
	State      JobState
	// Outcome is completed or failed once the job finishes and survives
	// the later move to cleaned.
	Outcome    JobState
	MergeMode  MergeMode
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewAcquisitionJob creates a job in the created state.
func NewAcquisitionJob(id JobID, scratchDir string) *AcquisitionJob {
	now := time.Now()
	return &AcquisitionJob{
		ID:         id,
		ScratchDir: scratchDir,
		State:      JobStateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkFetching moves the job into the fetching state.
func (j *AcquisitionJob) MarkFetching() {
	j.transition(JobStateFetching)
}

// MarkAssembling moves the job into the assembling state.
func (j *AcquisitionJob) MarkAssembling() {
	j.transition(JobStateAssembling)
}

// MarkCompleted moves the job into the completed state.
func (j *AcquisitionJob) MarkCompleted() {
	j.transition(JobStateCompleted)
}

// MarkFailed records err and moves the job into the failed state.
func (j *AcquisitionJob) MarkFailed(err error) {
	if err != nil {
		j.LastError = err.Error()
	}
	j.transition(JobStateFailed)
}

// MarkCleaned records that scratch artifacts were removed.
func (j *AcquisitionJob) MarkCleaned() {
	j.transition(JobStateCleaned)
}

func (j *AcquisitionJob) transition(s JobState) {
	// Failed and completed are final apart from the cleanup step.
	if j.State.IsTerminal() && s != JobStateCleaned {
		return
	}
	j.State = s
	if s == JobStateCompleted || s == JobStateFailed {
		j.Outcome = s
	}
	j.UpdatedAt = time.Now()
}
