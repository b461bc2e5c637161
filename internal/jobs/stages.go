package jobs

// Pipeline stages in execution order. Progress is a coarse percentage
// attached to each stage so polling clients can render a bar.
const (
	StageUploading  = "uploading"
	StageExtracting = "extracting_text"
	StageParsing    = "parsing"
	StageGenerating = "generating_explanation"
	StageFinalizing = "finalizing"
	StageDone       = "done"
	StageFailed     = "failed"
)

// ProgressByStage maps each stage to its reported progress percentage.
var ProgressByStage = map[string]int{
	StageUploading:  5,
	StageExtracting: 25,
	StageParsing:    45,
	StageGenerating: 70,
	StageFinalizing: 90,
	StageDone:       100,
	StageFailed:     100,
}
