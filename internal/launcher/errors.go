package launcher

import (
	"errors"
	"fmt"
)

// Kind classifies a JobError.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindStartRejected Kind = "start_rejected"
	KindStream        Kind = "stream"
	KindStreamLost    Kind = "stream_lost"
	KindJobFailed     Kind = "job_failed"
)

// ErrNoRecords is returned by Export when nothing has been collected.
var ErrNoRecords = errors.New("no listings to export")

// JobError is a launch or job failure surfaced to the caller.
type JobError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a JobError of kind k.
func IsKind(err error, k Kind) bool {
	var je *JobError
	return errors.As(err, &je) && je.Kind == k
}
