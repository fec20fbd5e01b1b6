package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow/internal/audit"
	"github.com/invoiceflow/invoiceflow/internal/lifecycle"
	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/store"
)

// AuditLog records approval actions. Nil is allowed and disables auditing.
type AuditLog interface {
	Log(ctx context.Context, entry audit.Entry) error
}

// Engine creates workflow instances and advances them against live document
// state. It performs no extraction retries and never caches document status
// across Advance calls.
type Engine struct {
	registry  *Registry
	instances store.WorkflowStore
	docs      store.DocumentStore
	lifecycle *lifecycle.Manager
	audit     AuditLog
}

func NewEngine(registry *Registry, instances store.WorkflowStore, docs store.DocumentStore, lm *lifecycle.Manager, auditLog AuditLog) *Engine {
	return &Engine{
		registry:  registry,
		instances: instances,
		docs:      docs,
		lifecycle: lm,
		audit:     auditLog,
	}
}

// StartRequest identifies the document a workflow wraps: either an existing
// document by ID, or raw upload metadata from which the document record is
// created first.
type StartRequest struct {
	DocumentID *uuid.UUID
	Upload     *lifecycle.CreateRequest
}

// Start resolves the named definition, ensures the document record exists and
// creates an instance at step 0. A document may have at most one active instance.
func (e *Engine) Start(ctx context.Context, workflowType string, req StartRequest) (*models.WorkflowInstance, error) {
	def, err := e.registry.Get(workflowType)
	if err != nil {
		return nil, err
	}

	var doc *models.Document
	switch {
	case req.DocumentID != nil:
		doc, err = e.docs.GetByID(ctx, *req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("resolve document %s: %w", *req.DocumentID, err)
		}
	case req.Upload != nil:
		doc, err = e.lifecycle.CreateDocument(ctx, *req.Upload)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("start workflow: document id or upload metadata required")
	}

	if _, err := e.instances.GetActiveByDocument(ctx, doc.ID); err == nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, store.ErrActiveWorkflowExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check active workflow: %w", err)
	}

	inst := &models.WorkflowInstance{
		ID:           uuid.New(),
		WorkflowType: def.Name,
		DocumentID:   doc.ID,
		CurrentStep:  0,
		Status:       models.WorkflowStatusRunning,
		History:      []models.StepRecord{},
	}
	if err := e.instances.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("create workflow instance: %w", err)
	}

	slog.Info("workflow started",
		"instance_id", inst.ID,
		"workflow_type", def.Name,
		"document_id", doc.ID,
	)
	return inst, nil
}

// Get returns the instance or store.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	return e.instances.GetByID(ctx, id)
}

// Advance evaluates the current step's completion condition against a fresh
// read of the document. An unmet condition is a no-op returning the unchanged
// instance, so Advance is safe to call repeatedly as a polling or
// event-driven trigger. A document in error fails the instance regardless of
// step.
func (e *Engine) Advance(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	inst, err := e.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Terminal() {
		return inst, nil
	}

	def, err := e.registry.Get(inst.WorkflowType)
	if err != nil {
		return nil, err
	}
	if inst.CurrentStep >= len(def.Steps) {
		return nil, fmt.Errorf("instance %s: step %d out of range for %q", inst.ID, inst.CurrentStep, def.Name)
	}
	step := def.Steps[inst.CurrentStep]

	doc, err := e.docs.GetByID(ctx, inst.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", inst.DocumentID, err)
	}

	outcome := step.Complete(doc, inst)
	if doc.Status == models.DocStatusError {
		outcome = OutcomeFailed
	}

	switch outcome {
	case OutcomePending:
		return inst, nil

	case OutcomeFailed:
		inst.History = append(inst.History, models.StepRecord{
			Step:        step.Name,
			Index:       inst.CurrentStep,
			Outcome:     string(OutcomeFailed),
			CompletedAt: time.Now().UTC(),
		})
		inst.Status = models.WorkflowStatusFailed
		slog.Warn("workflow failed", "instance_id", inst.ID, "step", step.Name)

	case OutcomeDone:
		inst.History = append(inst.History, models.StepRecord{
			Step:        step.Name,
			Index:       inst.CurrentStep,
			Outcome:     string(OutcomeDone),
			CompletedAt: time.Now().UTC(),
		})
		if step.Manual {
			inst.Decision = nil
		}
		inst.CurrentStep++
		if inst.CurrentStep >= len(def.Steps) {
			inst.Status = models.WorkflowStatusCompleted
			slog.Info("workflow completed", "instance_id", inst.ID)
		} else {
			slog.Info("workflow advanced",
				"instance_id", inst.ID,
				"completed_step", step.Name,
				"next_step", def.Steps[inst.CurrentStep].Name,
			)
		}
	}

	if err := e.instances.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("persist workflow instance: %w", err)
	}
	return inst, nil
}

// RecordDecision stores a human approval action for the instance's current
// manual step. Recording the same outcome twice is a no-op; a conflicting
// decision for the same step is rejected.
func (e *Engine) RecordDecision(ctx context.Context, id uuid.UUID, outcome, actor, notes string) (*models.WorkflowInstance, error) {
	if outcome != models.DecisionApprove && outcome != models.DecisionReject {
		return nil, fmt.Errorf("unknown decision outcome %q", outcome)
	}

	inst, err := e.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.WorkflowStatusRunning {
		return nil, fmt.Errorf("instance %s is %s, decisions are only accepted while running", inst.ID, inst.Status)
	}

	def, err := e.registry.Get(inst.WorkflowType)
	if err != nil {
		return nil, err
	}
	step := def.Steps[inst.CurrentStep]
	if !step.Manual {
		return nil, fmt.Errorf("step %q does not take decisions", step.Name)
	}

	if d := inst.Decision; d != nil && d.Step == step.Name {
		if d.Outcome == outcome {
			return inst, nil
		}
		return nil, fmt.Errorf("step %q already has a %s decision by %s", step.Name, d.Outcome, d.Actor)
	}

	inst.Decision = &models.Decision{
		Step:      step.Name,
		Outcome:   outcome,
		Actor:     actor,
		Notes:     notes,
		DecidedAt: time.Now().UTC(),
	}
	if err := e.instances.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}

	if e.audit != nil {
		resourceID := inst.ID
		if err := e.audit.Log(ctx, audit.Entry{
			Action:       "workflow." + outcome,
			ResourceType: "workflow_instance",
			ResourceID:   &resourceID,
			Actor:        actor,
			Details: map[string]any{
				"step":        step.Name,
				"document_id": inst.DocumentID,
				"notes":       notes,
			},
		}); err != nil {
			slog.Error("audit log failed", "error", err, "instance_id", inst.ID)
		}
	}

	slog.Info("decision recorded",
		"instance_id", inst.ID,
		"step", step.Name,
		"outcome", outcome,
		"actor", actor,
	)
	return inst, nil
}
