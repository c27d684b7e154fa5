package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded invocation of the batch orchestrator over a dataset
// split. The run store keeps these so interrupted runs can be found and
// resumed, and so finished runs keep their metrics.
type Run struct {
	ID         string     `json:"id"`
	Dataset    string     `json:"dataset"`
	Split      string     `json:"split"`
	Stage      Stage      `json:"stage"`
	Engine     string     `json:"engine"`
	PromptID   string     `json:"prompt_id"`
	OutputFile string     `json:"output_file"`
	Status     RunStatus  `json:"status"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	Metrics    *RunResult `json:"metrics,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run: evaluation scores plus the
// token spend observed while generating.
type RunResult struct {
	Scores        map[string]float64 `json:"scores,omitempty"`
	AvgLength     float64            `json:"avg_length,omitempty"`
	InputTokens   int                `json:"input_tokens"`
	OutputTokens  int                `json:"output_tokens"`
	EstimatedCost float64            `json:"estimated_cost"`
	Error         string             `json:"error,omitempty"`
}
