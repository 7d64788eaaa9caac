package ports

type EngineMetrics interface {
	RecordStep(summary StepSummary)
	RecordStale()
	RecordConflict()
	RecordFailure()
}
