package ingest

import "time"

type CycleError struct {
	Context string `json:"context"`
	Error   string `json:"error"`
}

// Result summarizes one ingestion cycle. Only the most recent result is
// retained, for status reporting; nothing here is persisted.
type Result struct {
	RunID           string       `json:"runId"`
	StartedAt       time.Time    `json:"startedAt"`
	DurationMS      int64        `json:"durationMs"`
	Discovered      int          `json:"discovered"`
	Validated       int          `json:"validated"`
	ThresholdPassed int          `json:"thresholdPassed"`
	Unique          int          `json:"unique"`
	Duplicates      int          `json:"duplicates"`
	Stored          int          `json:"stored"`
	Errors          []CycleError `json:"errors"`
}

func (r *Result) addError(context string, err error) {
	r.Errors = append(r.Errors, CycleError{Context: context, Error: err.Error()})
}
