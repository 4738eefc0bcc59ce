package enums

type PipelineState string

const (
	PipelineStateIdle             PipelineState = "idle"
	PipelineStateManifestResolved PipelineState = "manifest_resolved"
	PipelineStateKeyResolved      PipelineState = "key_resolved"
	PipelineStateResuming         PipelineState = "resuming"
	PipelineStateDownloading      PipelineState = "downloading"
	PipelineStateFinalizing       PipelineState = "finalizing"
	PipelineStateCompleted        PipelineState = "completed"
	PipelineStateFailed           PipelineState = "failed"
)

func (s PipelineState) IsTerminal() bool {
	return s == PipelineStateCompleted || s == PipelineStateFailed
}
