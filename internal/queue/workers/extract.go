package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/invoiceflow/invoiceflow/internal/extraction"
	"github.com/invoiceflow/invoiceflow/internal/lifecycle"
	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/queue"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/internal/store"
	"github.com/invoiceflow/invoiceflow/internal/webhook"
	"github.com/invoiceflow/invoiceflow/internal/workflow"
)

// ExtractWorker runs one extraction attempt per task: begin processing,
// extract, complete or fail, then advance the owning workflow instance.
type ExtractWorker struct {
	lifecycle *lifecycle.Manager
	extractor extraction.Extractor
	engine    *workflow.Engine
	events    *webhook.Service
}

func NewExtractWorker(lm *lifecycle.Manager, extractor extraction.Extractor, engine *workflow.Engine, events *webhook.Service) *ExtractWorker {
	return &ExtractWorker{
		lifecycle: lm,
		extractor: extractor,
		engine:    engine,
		events:    events,
	}
}

func (w *ExtractWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentExtractPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %w", err)
	}
	instanceID, err := uuid.Parse(payload.InstanceID)
	if err != nil {
		return fmt.Errorf("parse instance ID: %w", err)
	}

	slog.Info("extracting document", "document_id", docID, "instance_id", instanceID)

	if err := w.lifecycle.BeginProcessing(ctx, docID); err != nil {
		// The reaper may have reclaimed the document before we got here.
		if errors.Is(err, store.ErrNotFound) {
			slog.Info("document gone before processing, skipping", "document_id", docID)
			return nil
		}
		// A redelivered task finds the document already past uploaded. Another
		// attempt owns it; failing here would park the document in processing.
		if errors.Is(err, store.ErrInvalidTransition) {
			slog.Info("document already claimed, skipping", "document_id", docID)
			return nil
		}
		return err
	}

	doc, err := w.lifecycle.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get document: %w", err)
	}

	invoice, err := w.extractor.Extract(ctx, doc.ObjectPath, doc.FileType)
	switch {
	case err == nil:
		if err := w.lifecycle.CompleteProcessing(ctx, docID, invoice); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		w.dispatch(ctx, "document.completed", doc, nil)

	case errors.Is(err, storage.ErrObjectNotFound):
		// Object reclaimed mid-flight. If the record is also gone this is a
		// clean no-op; if it survived, the document is marked errored.
		if failErr := w.lifecycle.FailProcessing(ctx, docID, "source object no longer exists"); failErr != nil {
			if errors.Is(failErr, store.ErrNotFound) {
				slog.Info("document and object both reclaimed, skipping", "document_id", docID)
				return nil
			}
			return failErr
		}
		w.dispatch(ctx, "document.failed", doc, err)

	default:
		if failErr := w.lifecycle.FailProcessing(ctx, docID, err.Error()); failErr != nil {
			if errors.Is(failErr, store.ErrNotFound) {
				return nil
			}
			return failErr
		}
		w.dispatch(ctx, "document.failed", doc, err)
	}

	inst, err := w.engine.Advance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("advance workflow: %w", err)
	}

	if inst.Terminal() {
		w.dispatch(ctx, "workflow."+inst.Status, doc, nil)
	}

	slog.Info("extraction finished",
		"document_id", docID,
		"instance_id", instanceID,
		"instance_status", inst.Status,
	)
	return nil
}

func (w *ExtractWorker) dispatch(ctx context.Context, event string, doc *models.Document, cause error) {
	if w.events == nil {
		return
	}
	body := map[string]any{"document_id": doc.ID, "file_name": doc.FileName}
	if cause != nil {
		body["error"] = cause.Error()
	}
	if err := w.events.Dispatch(ctx, event, body); err != nil {
		slog.Error("event dispatch failed", "event", event, "error", err)
	}
}
