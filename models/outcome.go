package models

import (
	"time"

	"hlsgrab/enums"
)

type DownloadOutcome struct {
	ID              string              `json:"id"`
	Status          enums.OutcomeStatus `json:"status"`
	State           enums.PipelineState `json:"state"`
	FailedIn        enums.PipelineState `json:"failed_in,omitempty"`
	ManifestURL     string              `json:"manifest_url"`
	OutputPath      string              `json:"output_path"`
	BytesWritten    int64               `json:"bytes_written"`
	TotalSegments   int                 `json:"total_segments"`
	PendingSegments int                 `json:"pending_segments"`
	FailedSegments  int                 `json:"failed_segment_count"`
	FailureRate     float64             `json:"failure_rate"`
	Warning         bool                `json:"warning"`
	Severe          bool                `json:"severe"`
	Resumed         bool                `json:"resumed"`
	Elapsed         time.Duration       `json:"elapsed"`
	Reason          error               `json:"-"`
	ReasonText      string              `json:"reason,omitempty"`
}

func (o *DownloadOutcome) Completed() bool {
	return o.Status == enums.OutcomeStatusCompleted
}

func (o *DownloadOutcome) Fail(state enums.PipelineState, err error) *DownloadOutcome {
	o.Status = enums.OutcomeStatusFailed
	o.State = enums.PipelineStateFailed
	o.FailedIn = state
	o.Reason = err
	if err != nil {
		o.ReasonText = err.Error()
	}
	return o
}
