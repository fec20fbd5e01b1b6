package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow/internal/auth"
	"github.com/invoiceflow/invoiceflow/internal/workflow"
)

type WorkflowHandler struct {
	engine *workflow.Engine
}

func NewWorkflowHandler(engine *workflow.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: engine}
}

type startWorkflowRequest struct {
	WorkflowType string `json:"workflow_type" validate:"required"`
	DocumentID   string `json:"document_id" validate:"required,uuid"`
}

func (h *WorkflowHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	inst, err := h.engine.Start(r.Context(), req.WorkflowType, workflow.StartRequest{DocumentID: &docID})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, inst)
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instance ID")
		return
	}

	inst, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inst)
}

// Advance re-evaluates the current step. Safe to call repeatedly; an unmet
// condition returns the instance unchanged.
func (h *WorkflowHandler) Advance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instance ID")
		return
	}

	inst, err := h.engine.Advance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inst)
}

type decisionRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=approve reject"`
	Notes   string `json:"notes"`
}

// Decide records a human approval action for the current manual step and
// immediately advances the instance.
func (h *WorkflowHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instance ID")
		return
	}

	var req decisionRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := auth.ActorFromContext(r.Context())
	if _, err := h.engine.RecordDecision(r.Context(), id, req.Outcome, actor, req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}

	inst, err := h.engine.Advance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inst)
}
