package models

import "time"

const (
	ModeOnboarding   = "onboarding"
	ModeGenerateMore = "generate_more"
)

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// WorkflowRun is one execution of look generation.
type WorkflowRun struct {
	ID             string    `bson:"_id" json:"id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	Mode           string    `bson:"mode" json:"mode"`
	ExcludeItemIDs []string  `bson:"exclude_item_ids,omitempty" json:"exclude_item_ids,omitempty"`
	CreditsCharged int       `bson:"credits_charged" json:"credits_charged"`
	Status         string    `bson:"status" json:"status"`
	SuccessCount   int       `bson:"success_count" json:"success_count"`
	FailureCount   int       `bson:"failure_count" json:"failure_count"`
	Error          string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// WorkflowStep is one entry of the step log. Unique per (workflow id, name).
type WorkflowStep struct {
	WorkflowID string    `bson:"workflow_id" json:"workflow_id"`
	Name       string    `bson:"name" json:"name"`
	InputHash  string    `bson:"input_hash" json:"input_hash"`
	Status     string    `bson:"status" json:"status"`
	Output     []byte    `bson:"output,omitempty" json:"-"`
	Attempts   int       `bson:"attempts" json:"attempts"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}
