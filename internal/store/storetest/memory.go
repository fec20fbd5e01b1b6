// Package storetest provides in-memory store implementations for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/store"
)

// MemoryDocumentStore implements store.DocumentStore over a map. Hooks allow
// tests to inject failures on individual operations.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document

	DeleteErr func(id uuid.UUID) error
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[uuid.UUID]*models.Document)}
}

func (m *MemoryDocumentStore) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *MemoryDocumentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *MemoryDocumentStore) UpdateStatus(_ context.Context, id uuid.UUID, expected, next string, patch store.StatusPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	if doc.Status != expected {
		return fmt.Errorf("document %s is %q, expected %q: %w", id, doc.Status, expected, store.ErrInvalidTransition)
	}
	doc.Status = next
	if patch.Extracted != nil {
		doc.Extracted = patch.Extracted
	}
	if patch.ErrorMessage != nil {
		doc.ErrorMessage = patch.ErrorMessage
	}
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryDocumentStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	if m.DeleteErr != nil {
		if err := m.DeleteErr(id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryDocumentStore) QueryExpired(_ context.Context, now time.Time) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Document
	for _, doc := range m.docs {
		if doc.ExpiresAt.Before(now) {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (m *MemoryDocumentStore) List(_ context.Context, limit, offset int) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Document
	for _, doc := range m.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MemoryWorkflowStore implements store.WorkflowStore over a map.
type MemoryWorkflowStore struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*models.WorkflowInstance

	DeleteErr func(documentID uuid.UUID) error
}

func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{instances: make(map[uuid.UUID]*models.WorkflowInstance)}
}

func (m *MemoryWorkflowStore) Create(_ context.Context, inst *models.WorkflowInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	copied := *inst
	m.instances[inst.ID] = &copied
	return nil
}

func (m *MemoryWorkflowStore) GetByID(_ context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *inst
	return &copied, nil
}

func (m *MemoryWorkflowStore) Update(_ context.Context, inst *models.WorkflowInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.instances[inst.ID]
	if !ok {
		return store.ErrNotFound
	}
	if !current.UpdatedAt.Equal(inst.UpdatedAt) {
		return fmt.Errorf("instance %s: %w", inst.ID, store.ErrConcurrentUpdate)
	}

	next := time.Now().UTC()
	if !next.After(inst.UpdatedAt) {
		next = inst.UpdatedAt.Add(time.Nanosecond)
	}
	inst.UpdatedAt = next
	copied := *inst
	m.instances[inst.ID] = &copied
	return nil
}

func (m *MemoryWorkflowStore) GetActiveByDocument(_ context.Context, documentID uuid.UUID) (*models.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range m.instances {
		if inst.DocumentID == documentID && inst.Status == models.WorkflowStatusRunning {
			copied := *inst
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryWorkflowStore) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	if m.DeleteErr != nil {
		if err := m.DeleteErr(documentID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, inst := range m.instances {
		if inst.DocumentID == documentID {
			delete(m.instances, id)
		}
	}
	return nil
}
