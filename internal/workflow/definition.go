// Package workflow advances workflow instances through static, versioned
// workflow definitions.
package workflow

import (
	"fmt"

	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/store"
)

// StepOutcome is the result of evaluating a step's completion condition
// against live document and instance state.
type StepOutcome string

const (
	OutcomePending StepOutcome = "pending"
	OutcomeDone    StepOutcome = "done"
	OutcomeFailed  StepOutcome = "failed"
)

// Step is one entry in a definition's ordered step sequence. Complete is the
// step's advancement condition; it must be a pure read of the given state.
type Step struct {
	Name     string
	Manual   bool
	Complete func(doc *models.Document, inst *models.WorkflowInstance) StepOutcome
}

// Definition is a named, ordered sequence of steps. Definitions are loaded
// once at process start and never mutated at runtime.
type Definition struct {
	Name    string
	Version int
	Steps   []Step
}

// Registry holds the process-wide read-only set of workflow definitions.
type Registry struct {
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Name] = d
	}
	return r
}

func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("workflow type %q: %w", name, store.ErrUnknownWorkflowType)
	}
	return d, nil
}

// InvoiceApproval is the built-in invoice approval workflow:
// extract -> review -> approve.
func InvoiceApproval() Definition {
	return Definition{
		Name:    "invoice_approval",
		Version: 1,
		Steps: []Step{
			{
				Name: "extract",
				Complete: func(doc *models.Document, _ *models.WorkflowInstance) StepOutcome {
					switch doc.Status {
					case models.DocStatusCompleted:
						return OutcomeDone
					case models.DocStatusError:
						return OutcomeFailed
					default:
						return OutcomePending
					}
				},
			},
			{
				Name:     "review",
				Manual:   true,
				Complete: manualDecision("review"),
			},
			{
				Name:     "approve",
				Manual:   true,
				Complete: manualDecision("approve"),
			},
		},
	}
}

// manualDecision completes when a human decision has been recorded for the
// named step. A rejection fails the step and with it the instance.
func manualDecision(step string) func(*models.Document, *models.WorkflowInstance) StepOutcome {
	return func(_ *models.Document, inst *models.WorkflowInstance) StepOutcome {
		d := inst.Decision
		if d == nil || d.Step != step {
			return OutcomePending
		}
		if d.Outcome == models.DecisionReject {
			return OutcomeFailed
		}
		return OutcomeDone
	}
}
