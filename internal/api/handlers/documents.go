package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow/internal/audit"
	"github.com/invoiceflow/invoiceflow/internal/auth"
	"github.com/invoiceflow/invoiceflow/internal/lifecycle"
	"github.com/invoiceflow/invoiceflow/internal/queue"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/internal/store"
	"github.com/invoiceflow/invoiceflow/internal/workflow"
)

type DocumentHandler struct {
	lifecycle *lifecycle.Manager
	engine    *workflow.Engine
	docs      store.DocumentStore
	workflows store.WorkflowStore
	objects   storage.Storage
	tasks     *queue.Client
	auditLog  *audit.Service
	retention time.Duration
}

func NewDocumentHandler(lm *lifecycle.Manager, engine *workflow.Engine, docs store.DocumentStore, workflows store.WorkflowStore, objects storage.Storage, tasks *queue.Client, auditLog *audit.Service, retention time.Duration) *DocumentHandler {
	return &DocumentHandler{
		lifecycle: lm,
		engine:    engine,
		docs:      docs,
		workflows: workflows,
		objects:   objects,
		tasks:     tasks,
		auditLog:  auditLog,
		retention: retention,
	}
}

func (h *DocumentHandler) recordAudit(r *http.Request, action string, docID uuid.UUID, details map[string]any) {
	if h.auditLog == nil {
		return
	}
	entry := audit.Entry{
		Action:       action,
		ResourceType: "document",
		ResourceID:   &docID,
		Actor:        auth.ActorFromContext(r.Context()),
		Details:      details,
	}
	if err := h.auditLog.Log(r.Context(), entry); err != nil {
		slog.Error("audit log failed", "action", action, "document_id", docID, "error", err)
	}
}

type createDocumentRequest struct {
	ObjectPath    string `json:"object_path" validate:"required"`
	FileName      string `json:"file_name" validate:"required"`
	FileType      string `json:"file_type" validate:"required"`
	FileSizeBytes int64  `json:"file_size_bytes" validate:"required,gt=0"`
	WorkflowType  string `json:"workflow_type"`
}

// Create registers an uploaded artifact as a document, wraps it in a
// workflow instance and schedules the extraction attempt.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WorkflowType == "" {
		req.WorkflowType = "invoice_approval"
	}

	doc, err := h.lifecycle.CreateDocument(r.Context(), lifecycle.CreateRequest{
		ObjectPath:    req.ObjectPath,
		FileName:      req.FileName,
		FileType:      req.FileType,
		FileSizeBytes: req.FileSizeBytes,
		Retention:     h.retention,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	inst, err := h.engine.Start(r.Context(), req.WorkflowType, workflow.StartRequest{DocumentID: &doc.ID})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.tasks.EnqueueDocumentExtract(queue.DocumentExtractPayload{
		DocumentID: doc.ID.String(),
		InstanceID: inst.ID.String(),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.recordAudit(r, "document.created", doc.ID, map[string]any{
		"file_name":     doc.FileName,
		"workflow_type": inst.WorkflowType,
		"instance_id":   inst.ID,
	})

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"document": doc,
		"workflow": inst,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	docs, err := h.docs.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	doc, err := h.docs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	doc, err := h.docs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]string{"id": doc.ID.String(), "status": doc.Status}
	if doc.ErrorMessage != nil {
		resp["error_message"] = *doc.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete removes a document on explicit user request: the backing object
// first, then the record, the same ordering the reaper uses.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	doc, err := h.docs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.objects.Delete(r.Context(), doc.ObjectPath); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := h.docs.DeleteByID(r.Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeDomainError(w, err)
		return
	}
	if err := h.workflows.DeleteByDocument(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	h.recordAudit(r, "document.deleted", id, map[string]any{
		"object_path": doc.ObjectPath,
		"file_name":   doc.FileName,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "deleted",
		"deleted_by": auth.ActorFromContext(r.Context()),
	})
}
