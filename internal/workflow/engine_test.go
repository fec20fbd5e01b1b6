package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow/internal/audit"
	"github.com/invoiceflow/invoiceflow/internal/lifecycle"
	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/store"
	"github.com/invoiceflow/invoiceflow/internal/store/storetest"
)

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type fixture struct {
	engine    *Engine
	docs      *storetest.MemoryDocumentStore
	instances *storetest.MemoryWorkflowStore
	lifecycle *lifecycle.Manager
	audit     *recordingAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	docs := storetest.NewMemoryDocumentStore()
	instances := storetest.NewMemoryWorkflowStore()
	lm := lifecycle.NewManager(docs)
	auditLog := &recordingAudit{}

	registry := NewRegistry(InvoiceApproval())
	return &fixture{
		engine:    NewEngine(registry, instances, docs, lm, auditLog),
		docs:      docs,
		instances: instances,
		lifecycle: lm,
		audit:     auditLog,
	}
}

func (f *fixture) newDocument(t *testing.T) *models.Document {
	t.Helper()

	doc, err := f.lifecycle.CreateDocument(context.Background(), lifecycle.CreateRequest{
		ObjectPath:    "20260101/invoice.pdf",
		FileName:      "invoice.pdf",
		FileType:      "application/pdf",
		FileSizeBytes: 1024,
		Retention:     24 * time.Hour,
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) start(t *testing.T) (*models.Document, *models.WorkflowInstance) {
	t.Helper()

	doc := f.newDocument(t)
	inst, err := f.engine.Start(context.Background(), "invoice_approval", StartRequest{DocumentID: &doc.ID})
	require.NoError(t, err)
	return doc, inst
}

func (f *fixture) completeExtraction(t *testing.T, docID uuid.UUID) {
	t.Helper()

	require.NoError(t, f.lifecycle.BeginProcessing(context.Background(), docID))
	require.NoError(t, f.lifecycle.CompleteProcessing(context.Background(), docID, &models.ExtractedInvoice{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-2042",
		TotalAmount:   512.50,
		Currency:      "EUR",
	}))
}

func TestStart(t *testing.T) {
	f := newFixture(t)

	doc, inst := f.start(t)

	assert.Equal(t, "invoice_approval", inst.WorkflowType)
	assert.Equal(t, doc.ID, inst.DocumentID)
	assert.Equal(t, 0, inst.CurrentStep)
	assert.Equal(t, models.WorkflowStatusRunning, inst.Status)
	assert.Empty(t, inst.History)
}

func TestStartUnknownWorkflowType(t *testing.T) {
	f := newFixture(t)
	doc := f.newDocument(t)

	_, err := f.engine.Start(context.Background(), "nonexistent", StartRequest{DocumentID: &doc.ID})
	require.ErrorIs(t, err, store.ErrUnknownWorkflowType)
}

func TestStartMissingDocument(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	_, err := f.engine.Start(context.Background(), "invoice_approval", StartRequest{DocumentID: &id})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartRequiresDocumentOrUpload(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Start(context.Background(), "invoice_approval", StartRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document id or upload metadata required")
}

func TestStartFromUploadMetadata(t *testing.T) {
	f := newFixture(t)

	inst, err := f.engine.Start(context.Background(), "invoice_approval", StartRequest{
		Upload: &lifecycle.CreateRequest{
			ObjectPath:    "20260101/new.pdf",
			FileName:      "new.pdf",
			FileType:      "application/pdf",
			FileSizeBytes: 512,
			Retention:     time.Hour,
		},
	})
	require.NoError(t, err)

	doc, err := f.lifecycle.Get(context.Background(), inst.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploading, doc.Status)
}

func TestStartRejectsSecondActiveWorkflow(t *testing.T) {
	f := newFixture(t)
	doc, _ := f.start(t)

	_, err := f.engine.Start(context.Background(), "invoice_approval", StartRequest{DocumentID: &doc.ID})
	require.ErrorIs(t, err, store.ErrActiveWorkflowExists)
}

func TestAdvancePendingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, inst := f.start(t)

	// The document is still uploading, so the extract step never completes.
	for i := 0; i < 10; i++ {
		got, err := f.engine.Advance(context.Background(), inst.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.CurrentStep)
		assert.Equal(t, models.WorkflowStatusRunning, got.Status)
		assert.Empty(t, got.History)
	}
}

func TestAdvancePastExtraction(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	got, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, models.WorkflowStatusRunning, got.Status)
	require.Len(t, got.History, 1)
	assert.Equal(t, "extract", got.History[0].Step)
	assert.Equal(t, "done", got.History[0].Outcome)
}

func TestAdvanceFailsOnDocumentError(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)

	require.NoError(t, f.lifecycle.BeginProcessing(context.Background(), doc.ID))
	require.NoError(t, f.lifecycle.FailProcessing(context.Background(), doc.ID, "unreadable pdf"))

	got, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusFailed, got.Status)
	require.Len(t, got.History, 1)
	assert.Equal(t, "failed", got.History[0].Outcome)
}

func TestAdvanceDocumentErrorFailsRegardlessOfStep(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	// Force the document into error underneath a waiting manual step.
	msg := "reaped mid-review"
	require.NoError(t, f.docs.UpdateStatus(context.Background(), doc.ID,
		models.DocStatusCompleted, models.DocStatusError, store.StatusPatch{ErrorMessage: &msg}))

	got, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusFailed, got.Status)
}

func TestAdvanceTerminalInstanceIsNoOp(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)

	require.NoError(t, f.lifecycle.BeginProcessing(context.Background(), doc.ID))
	require.NoError(t, f.lifecycle.FailProcessing(context.Background(), doc.ID, "boom"))

	failed, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowStatusFailed, failed.Status)

	again, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, failed.Status, again.Status)
	assert.Len(t, again.History, len(failed.History))
}

func TestRecordDecisionApprove(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	got, err := f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "reviewer@example.com", "looks right")
	require.NoError(t, err)
	require.NotNil(t, got.Decision)
	assert.Equal(t, "review", got.Decision.Step)
	assert.Equal(t, models.DecisionApprove, got.Decision.Outcome)
	assert.Equal(t, "reviewer@example.com", got.Decision.Actor)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "workflow.approve", f.audit.entries[0].Action)

	advanced, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, advanced.CurrentStep)
	// The recorded decision is consumed by the step it belongs to.
	assert.Nil(t, advanced.Decision)
}

func TestRecordDecisionReject(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionReject, "reviewer@example.com", "totals do not add up")
	require.NoError(t, err)

	got, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusFailed, got.Status)
	require.Len(t, got.History, 2)
	assert.Equal(t, "review", got.History[1].Step)
	assert.Equal(t, "failed", got.History[1].Outcome)
}

func TestRecordDecisionIdempotentForSameOutcome(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "a@example.com", "")
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "b@example.com", "")
	require.NoError(t, err)

	got, err := f.engine.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Decision)
	assert.Equal(t, "a@example.com", got.Decision.Actor)
	assert.Len(t, f.audit.entries, 1)
}

func TestRecordDecisionConflictRejected(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "a@example.com", "")
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionReject, "b@example.com", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a approve decision")
}

func TestRecordDecisionRejectsUnknownOutcome(t *testing.T) {
	f := newFixture(t)
	_, inst := f.start(t)

	_, err := f.engine.RecordDecision(context.Background(), inst.ID, "maybe", "a@example.com", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown decision outcome")
}

func TestRecordDecisionRejectedOnAutomaticStep(t *testing.T) {
	f := newFixture(t)
	_, inst := f.start(t)

	_, err := f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "a@example.com", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not take decisions")
}

func TestFullApprovalFlow(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "reviewer@example.com", "")
	require.NoError(t, err)
	_, err = f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "manager@example.com", "")
	require.NoError(t, err)
	got, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusCompleted, got.Status)
	require.Len(t, got.History, 3)
	assert.Equal(t, []string{"extract", "review", "approve"},
		[]string{got.History[0].Step, got.History[1].Step, got.History[2].Step})
	for _, record := range got.History {
		assert.Equal(t, "done", record.Outcome)
		assert.False(t, record.CompletedAt.IsZero())
	}

	// A completed workflow frees the document for a new instance.
	_, err = f.engine.Start(context.Background(), "invoice_approval", StartRequest{DocumentID: &doc.ID})
	require.NoError(t, err)
}

func TestRecordDecisionOnTerminalInstance(t *testing.T) {
	f := newFixture(t)
	doc, inst := f.start(t)

	require.NoError(t, f.lifecycle.BeginProcessing(context.Background(), doc.ID))
	require.NoError(t, f.lifecycle.FailProcessing(context.Background(), doc.ID, "boom"))
	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "a@example.com", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only accepted while running")
}

// staleReadStore serves one stashed stale snapshot, simulating a second
// caller that read the instance before a racing write landed.
type staleReadStore struct {
	*storetest.MemoryWorkflowStore
	stale *models.WorkflowInstance
}

func (s *staleReadStore) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	if s.stale != nil && s.stale.ID == id {
		copied := *s.stale
		s.stale = nil
		return &copied, nil
	}
	return s.MemoryWorkflowStore.GetByID(ctx, id)
}

func newRacingFixture(t *testing.T) (*fixture, *staleReadStore) {
	t.Helper()

	docs := storetest.NewMemoryDocumentStore()
	instances := &staleReadStore{MemoryWorkflowStore: storetest.NewMemoryWorkflowStore()}
	lm := lifecycle.NewManager(docs)

	f := &fixture{
		engine:    NewEngine(NewRegistry(InvoiceApproval()), instances, docs, lm, nil),
		docs:      docs,
		instances: instances.MemoryWorkflowStore,
		lifecycle: lm,
	}
	return f, instances
}

func TestRecordDecisionLosingRacerRejected(t *testing.T) {
	f, instances := newRacingFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	// Both callers read the instance at the review step before either writes.
	snapshot, err := f.instances.GetByID(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "a@example.com", "")
	require.NoError(t, err)

	instances.stale = snapshot
	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionReject, "b@example.com", "")
	require.ErrorIs(t, err, store.ErrConcurrentUpdate)

	got, err := f.instances.GetByID(context.Background(), inst.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Decision)
	assert.Equal(t, models.DecisionApprove, got.Decision.Outcome)
	assert.Equal(t, "a@example.com", got.Decision.Actor)
}

func TestAdvanceLosingRacerDoesNotRollBackHistory(t *testing.T) {
	f, instances := newRacingFixture(t)
	doc, inst := f.start(t)
	f.completeExtraction(t, doc.ID)

	_, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(context.Background(), inst.ID, models.DecisionApprove, "a@example.com", "")
	require.NoError(t, err)

	snapshot, err := f.instances.GetByID(context.Background(), inst.ID)
	require.NoError(t, err)

	advanced, err := f.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Equal(t, 2, advanced.CurrentStep)

	// A second Advance that read before the first wrote must not un-append
	// the history it is unaware of.
	instances.stale = snapshot
	_, err = f.engine.Advance(context.Background(), inst.ID)
	require.ErrorIs(t, err, store.ErrConcurrentUpdate)

	got, err := f.instances.GetByID(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Len(t, got.History, 2)
}

func TestRegistryGetUnknown(t *testing.T) {
	registry := NewRegistry(InvoiceApproval())

	_, err := registry.Get("payment_run")
	require.ErrorIs(t, err, store.ErrUnknownWorkflowType)
}
