package model

import "encoding/json"

// Remote task statuses reported by the scorer.
const (
	RemoteQueued     = "queued"
	RemoteProcessing = "processing"
	RemoteCompleted  = "completed"
	RemoteFailed     = "failed"
)

// Evaluation is the payload of a finished (or last observed) remote task.
type Evaluation struct {
	TaskID  string           `json:"task_id,omitempty"`
	Status  string           `json:"status"`
	Results []EvaluationItem `json:"results"`
	Raw     json.RawMessage  `json:"-"`
}

// EvaluationItem is one per-take record inside an Evaluation.
// FinalScore is nil when the scorer omitted it for that take.
type EvaluationItem struct {
	FinalScore *float64 `json:"final_score"`
}

// Item builds an EvaluationItem carrying score.
func Item(score float64) EvaluationItem {
	return EvaluationItem{FinalScore: &score}
}
