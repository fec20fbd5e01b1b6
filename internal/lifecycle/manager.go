// Package lifecycle owns the per-document state machine:
// uploading -> processing -> completed | error.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/store"
)

// Manager drives document status transitions through single conditional
// updates against the document store. It never calls the extraction service;
// that orchestration belongs to the workflow layer.
type Manager struct {
	docs store.DocumentStore
}

func NewManager(docs store.DocumentStore) *Manager {
	return &Manager{docs: docs}
}

// CreateRequest carries the upload metadata a new document is created from.
// ObjectPath is required: a document record never exists without a stored object.
type CreateRequest struct {
	ObjectPath    string
	FileName      string
	FileType      string
	FileSizeBytes int64
	Retention     time.Duration
}

// CreateDocument persists a new document in status "uploading" with
// expires_at fixed at creation time. The expiry is never extended.
func (m *Manager) CreateDocument(ctx context.Context, req CreateRequest) (*models.Document, error) {
	if req.ObjectPath == "" {
		return nil, fmt.Errorf("object path is required")
	}
	if req.Retention <= 0 {
		return nil, fmt.Errorf("retention window must be positive, got %s", req.Retention)
	}

	doc := &models.Document{
		ID:            uuid.New(),
		ObjectPath:    req.ObjectPath,
		FileName:      req.FileName,
		FileType:      req.FileType,
		FileSizeBytes: req.FileSizeBytes,
		Status:        models.DocStatusUploading,
		ExpiresAt:     time.Now().UTC().Add(req.Retention),
	}

	if err := m.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	slog.Info("document created",
		"document_id", doc.ID,
		"object_path", doc.ObjectPath,
		"expires_at", doc.ExpiresAt,
	)
	return doc, nil
}

// Get returns the current document state.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return m.docs.GetByID(ctx, id)
}

// BeginProcessing transitions uploading -> processing.
func (m *Manager) BeginProcessing(ctx context.Context, id uuid.UUID) error {
	err := m.docs.UpdateStatus(ctx, id, models.DocStatusUploading, models.DocStatusProcessing, store.StatusPatch{})
	if err != nil {
		return fmt.Errorf("begin processing %s: %w", id, err)
	}
	slog.Info("document processing", "document_id", id)
	return nil
}

// CompleteProcessing transitions processing -> completed and stores the
// extracted invoice fields.
func (m *Manager) CompleteProcessing(ctx context.Context, id uuid.UUID, extracted *models.ExtractedInvoice) error {
	if extracted == nil {
		return fmt.Errorf("complete processing %s: extracted data is required", id)
	}

	err := m.docs.UpdateStatus(ctx, id, models.DocStatusProcessing, models.DocStatusCompleted,
		store.StatusPatch{Extracted: extracted})
	if err != nil {
		return fmt.Errorf("complete processing %s: %w", id, err)
	}
	slog.Info("document completed", "document_id", id, "vendor", extracted.VendorName)
	return nil
}

// FailProcessing transitions processing -> error and records the failure.
func (m *Manager) FailProcessing(ctx context.Context, id uuid.UUID, message string) error {
	err := m.docs.UpdateStatus(ctx, id, models.DocStatusProcessing, models.DocStatusError,
		store.StatusPatch{ErrorMessage: &message})
	if err != nil {
		return fmt.Errorf("fail processing %s: %w", id, err)
	}
	slog.Warn("document errored", "document_id", id, "error_message", message)
	return nil
}
