package enums

type OutcomeStatus string

const (
	OutcomeStatusCompleted OutcomeStatus = "completed"
	OutcomeStatusFailed    OutcomeStatus = "failed"
)
