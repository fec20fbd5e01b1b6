package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow/internal/lifecycle"
	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/queue"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/internal/store/storetest"
	"github.com/invoiceflow/invoiceflow/internal/workflow"
)

type fakeExtractor struct {
	invoice *models.ExtractedInvoice
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(context.Context, string, string) (*models.ExtractedInvoice, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.invoice, nil
}

type fixture struct {
	worker    *ExtractWorker
	extractor *fakeExtractor
	lifecycle *lifecycle.Manager
	engine    *workflow.Engine
	docs      *storetest.MemoryDocumentStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	docs := storetest.NewMemoryDocumentStore()
	instances := storetest.NewMemoryWorkflowStore()
	lm := lifecycle.NewManager(docs)
	engine := workflow.NewEngine(workflow.NewRegistry(workflow.InvoiceApproval()), instances, docs, lm, nil)
	extractor := &fakeExtractor{
		invoice: &models.ExtractedInvoice{
			VendorName:    "Acme Corp",
			InvoiceNumber: "INV-7",
			TotalAmount:   99.0,
			Currency:      "USD",
		},
	}

	return &fixture{
		worker:    NewExtractWorker(lm, extractor, engine, nil),
		extractor: extractor,
		lifecycle: lm,
		engine:    engine,
		docs:      docs,
	}
}

func (f *fixture) startWorkflow(t *testing.T) (*models.Document, *models.WorkflowInstance, *asynq.Task) {
	t.Helper()

	doc, err := f.lifecycle.CreateDocument(context.Background(), lifecycle.CreateRequest{
		ObjectPath:    "20260101/invoice.pdf",
		FileName:      "invoice.pdf",
		FileType:      "application/pdf",
		FileSizeBytes: 1024,
		Retention:     24 * time.Hour,
	})
	require.NoError(t, err)

	inst, err := f.engine.Start(context.Background(), "invoice_approval", workflow.StartRequest{DocumentID: &doc.ID})
	require.NoError(t, err)

	payload, err := json.Marshal(queue.DocumentExtractPayload{
		DocumentID: doc.ID.String(),
		InstanceID: inst.ID.String(),
	})
	require.NoError(t, err)

	return doc, inst, asynq.NewTask(queue.TypeDocumentExtract, payload)
}

func TestProcessTaskSuccess(t *testing.T) {
	f := newFixture(t)
	doc, inst, task := f.startWorkflow(t)

	require.NoError(t, f.worker.ProcessTask(context.Background(), task))

	got, err := f.lifecycle.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, got.Status)
	require.NotNil(t, got.Extracted)
	assert.Equal(t, "INV-7", got.Extracted.InvoiceNumber)

	// The workflow advanced past the extract step to the manual review.
	gotInst, err := f.engine.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotInst.CurrentStep)
	assert.Equal(t, models.WorkflowStatusRunning, gotInst.Status)
}

func TestProcessTaskExtractionFailure(t *testing.T) {
	f := newFixture(t)
	doc, inst, task := f.startWorkflow(t)
	f.extractor.err = fmt.Errorf("no extractable text")

	require.NoError(t, f.worker.ProcessTask(context.Background(), task))

	got, err := f.lifecycle.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "no extractable text", *got.ErrorMessage)

	gotInst, err := f.engine.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusFailed, gotInst.Status)
}

func TestProcessTaskObjectReclaimedMidFlight(t *testing.T) {
	f := newFixture(t)
	doc, inst, task := f.startWorkflow(t)
	f.extractor.err = fmt.Errorf("download x: %w", storage.ErrObjectNotFound)

	require.NoError(t, f.worker.ProcessTask(context.Background(), task))

	got, err := f.lifecycle.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusError, got.Status)

	gotInst, err := f.engine.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusFailed, gotInst.Status)
}

func TestProcessTaskDocumentAlreadyReaped(t *testing.T) {
	f := newFixture(t)
	doc, _, task := f.startWorkflow(t)

	require.NoError(t, f.docs.DeleteByID(context.Background(), doc.ID))

	// A reclaimed document is a clean no-op, not a retryable failure.
	require.NoError(t, f.worker.ProcessTask(context.Background(), task))
	assert.Zero(t, f.extractor.calls)
}

func TestProcessTaskRedeliveryWhileProcessing(t *testing.T) {
	f := newFixture(t)
	doc, _, task := f.startWorkflow(t)

	// Another delivery of the same task already claimed the document.
	require.NoError(t, f.lifecycle.BeginProcessing(context.Background(), doc.ID))

	require.NoError(t, f.worker.ProcessTask(context.Background(), task))
	assert.Zero(t, f.extractor.calls)

	got, err := f.lifecycle.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, got.Status)
}

func TestProcessTaskBadPayload(t *testing.T) {
	f := newFixture(t)

	task := asynq.NewTask(queue.TypeDocumentExtract, []byte("{not json"))
	require.Error(t, f.worker.ProcessTask(context.Background(), task))

	payload, _ := json.Marshal(queue.DocumentExtractPayload{DocumentID: "not-a-uuid", InstanceID: uuid.NewString()})
	require.Error(t, f.worker.ProcessTask(context.Background(), asynq.NewTask(queue.TypeDocumentExtract, payload)))
}
