package tracing

// Span attribute keys.
const (
	AttrJobID       = "job.id"
	AttrJobOutcome  = "job.outcome"
	AttrJobPlatform = "job.platform"
	AttrStageName   = "stage.name"
	AttrNodeID      = "node.id"
	AttrNodeOS      = "node.os"
	AttrExitCode    = "process.exit_code"
	AttrFileCount   = "artifact.count"
)

// Span names.
const (
	SpanJob          = "job.run"
	SpanStagePrefix  = "stage."
	EventTransition  = "job.transition"
	EventNodeBound   = "node.bound"
	EventPublishSkip = "publish.empty"
)
