package domain

import "time"

// JobStatus tracks the lifecycle of a single separation job.
type JobStatus string

const (
	JobStatusIdle     JobStatus = "idle"
	JobStatusRunning  JobStatus = "running"
	JobStatusStopping JobStatus = "stopping"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
)

// Settings contains user-selectable separation options.
type Settings struct {
	UseCPU           bool    `json:"useCpu"`
	SingleONNX       bool    `json:"singleOnnx"`
	LargeGPU         bool    `json:"largeGpu"`
	UseOldVocalModel bool    `json:"useOldVocalModel"`
	OnlyVocals       bool    `json:"onlyVocals"`
	ChunkSize        int     `json:"chunkSize" validate:"min=100000,max=10000000"`
	OverlapLarge     float64 `json:"overlapLarge" validate:"min=0.001,max=0.999"`
	OverlapSmall     float64 `json:"overlapSmall" validate:"min=0.001,max=0.999"`
}

// JobOptions is the immutable input snapshot of one job.
type JobOptions struct {
	Files        []string `json:"files"`
	OutputFolder string   `json:"outputFolder"`
	Settings     Settings `json:"settings"`
}

// Clone returns a deep copy so callers can keep mutating their own slices.
func (o JobOptions) Clone() JobOptions {
	o.Files = append([]string(nil), o.Files...)
	return o
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	StartedAt time.Time  `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Outcome is the terminal notification of a job.
type Outcome struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Message   string    `json:"message,omitempty"`
	Outputs   []string  `json:"outputs,omitempty"`
}
