package jobs

import "context"

// JobState is the downstream transform job status as reported by the job
// service.
type JobState string

const (
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
)

func (s JobState) String() string { return string(s) }

func (s JobState) IsValid() bool {
	switch s {
	case JobStateRunning, JobStateSucceeded, JobStateFailed:
		return true
	}
	return false
}

// Client is the transform job service collaborator: Launch accepts a job for
// execution and returns a handle; Status resolves a handle to its state.
// Neither call blocks on job completion.
type Client interface {
	Launch(ctx context.Context, jobName string, parameters map[string]string) (string, error)
	Status(ctx context.Context, handle string) (JobState, error)
}
