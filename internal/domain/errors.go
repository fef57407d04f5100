package domain

import "errors"

// Domain errors.
var (
	// ErrEmptyCatalog is returned when a source reports no usable streams.
	ErrEmptyCatalog = errors.New("source reported no streams")

	// ErrNoSuitableFormat is returned when no tier fits its size ceiling.
	ErrNoSuitableFormat = errors.New("no suitable format within size limit")

	// ErrNoAudioAvailable is returned when a split assembly has no audio stream to pair with.
	ErrNoAudioAvailable = errors.New("no audio stream available")

	// ErrStreamFetchFailure is returned when a stream download fails.
	ErrStreamFetchFailure = errors.New("stream fetch failed")

	// ErrMergeFailure is returned when both the copy and the re-encode remux attempts fail.
	ErrMergeFailure = errors.New("stream merge failed")

	// ErrSubprocessUnavailable is returned when the remuxing tool is not installed.
	ErrSubprocessUnavailable = errors.New("remux tool unavailable")

	// ErrInvalidToken is returned when a selection token cannot be decoded.
	ErrInvalidToken = errors.New("invalid selection token")

	// ErrSessionNotFound is returned when a selection token has no live session.
	ErrSessionNotFound = errors.New("selection session not found or expired")

	// ErrStreamNotFound is returned when a stream referenced by a token is gone from the catalog.
	ErrStreamNotFound = errors.New("stream not found in catalog")

	// ErrSourceNotFound is returned when the metadata collaborator does not know the source.
	ErrSourceNotFound = errors.New("source not found")

	// ErrURLExpired is returned when the stream URL has expired.
	ErrURLExpired = errors.New("stream URL has expired")

	// ErrRateLimited is returned when rate limited by external services.
	ErrRateLimited = errors.New("rate limited")

	// ErrStorageFull is returned when there is insufficient storage space.
	ErrStorageFull = errors.New("insufficient storage space")

	// ErrMediaNotFound is returned when a delivered file cannot be found.
	ErrMediaNotFound = errors.New("media file not found")

	// ErrJobNotFound is returned when a job has no history record.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownProfile is returned when a resolve names an unconfigured tier profile.
	ErrUnknownProfile = errors.New("unknown selection profile")

	// ErrPathOutsideRoot is returned when a file name would escape the work root.
	ErrPathOutsideRoot = errors.New("path outside work root")
)

// IsSourceLimitation reports whether err describes what the source offers
// rather than a transient infrastructure failure.
func IsSourceLimitation(err error) bool {
	return errors.Is(err, ErrEmptyCatalog) ||
		errors.Is(err, ErrNoSuitableFormat) ||
		errors.Is(err, ErrNoAudioAvailable) ||
		errors.Is(err, ErrStreamNotFound)
}

// JobError wraps an error with acquisition job context.
type JobError struct {
	JobID JobID
	Op    string
	Err   error
}

func (e *JobError) Error() string {
	if e.JobID != "" {
		return e.Op + " [" + e.JobID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new JobError.
func NewJobError(jobID JobID, op string, err error) *JobError {
	return &JobError{
		JobID: jobID,
		Op:    op,
		Err:   err,
	}
}
