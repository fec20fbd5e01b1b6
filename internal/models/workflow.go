package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow instance statuses.
const (
	WorkflowStatusRunning   = "running"
	WorkflowStatusCompleted = "completed"
	WorkflowStatusFailed    = "failed"
)

// Decision outcomes for manual approval steps.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// WorkflowInstance wraps a document in a named workflow definition and
// tracks its progression through the definition's steps. The instance
// reads document state to decide transitions but never owns the document.
type WorkflowInstance struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	WorkflowType string       `json:"workflow_type" db:"workflow_type"`
	DocumentID   uuid.UUID    `json:"document_id" db:"document_id"`
	CurrentStep  int          `json:"current_step" db:"current_step"`
	Status       string       `json:"status" db:"status"`
	Decision     *Decision    `json:"decision,omitempty" db:"decision"`
	History      []StepRecord `json:"history" db:"history"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the instance reached a final status.
func (w *WorkflowInstance) Terminal() bool {
	return w.Status == WorkflowStatusCompleted || w.Status == WorkflowStatusFailed
}

// StepRecord is one completed step in an instance's append-only history.
type StepRecord struct {
	Step        string    `json:"step"`
	Index       int       `json:"index"`
	Outcome     string    `json:"outcome"`
	CompletedAt time.Time `json:"completed_at"`
}

// Decision is a recorded human approval action for a manual step.
type Decision struct {
	Step      string    `json:"step"`
	Outcome   string    `json:"outcome"`
	Actor     string    `json:"actor"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}
