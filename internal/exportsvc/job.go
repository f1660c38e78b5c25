package exportsvc

import (
	"context"

	"cardcast/internal/capture"
	"cardcast/internal/exports"
)

// Outcome is a finished export.
type Outcome struct {
	Export *exports.Record
	Result capture.Result
}

// Job is an export in progress.
type Job struct {
	Session *capture.Session
	// Export is the history row as created; Outcome carries the final row.
	Export *exports.Record

	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
	err     error
}

// Done is closed once history, verification and notification are settled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel aborts the recording. The export finishes as failed.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the job is done or ctx ends.
func (j *Job) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-j.done:
		return j.outcome, j.err
	}
}
