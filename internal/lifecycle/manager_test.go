package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/store"
	"github.com/invoiceflow/invoiceflow/internal/store/storetest"
)

func createRequest() CreateRequest {
	return CreateRequest{
		ObjectPath:    "20260101/abc.pdf",
		FileName:      "invoice.pdf",
		FileType:      "application/pdf",
		FileSizeBytes: 2048,
		Retention:     24 * time.Hour,
	}
}

func TestCreateDocument(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	before := time.Now().UTC()
	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, models.DocStatusUploading, doc.Status)
	assert.Equal(t, "20260101/abc.pdf", doc.ObjectPath)
	assert.Nil(t, doc.Extracted)
	assert.Nil(t, doc.ErrorMessage)

	wantExpiry := before.Add(24 * time.Hour)
	assert.WithinDuration(t, wantExpiry, doc.ExpiresAt, 5*time.Second)
}

func TestCreateDocumentRequiresObjectPath(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	req := createRequest()
	req.ObjectPath = ""
	_, err := m.CreateDocument(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object path")
}

func TestCreateDocumentRequiresPositiveRetention(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	req := createRequest()
	req.Retention = 0
	_, err := m.CreateDocument(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention")
}

func TestBeginProcessing(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)

	require.NoError(t, m.BeginProcessing(context.Background(), doc.ID))

	got, err := m.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, got.Status)
}

func TestBeginProcessingTwiceFails(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)

	require.NoError(t, m.BeginProcessing(context.Background(), doc.ID))

	err = m.BeginProcessing(context.Background(), doc.ID)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestCompleteProcessing(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)
	require.NoError(t, m.BeginProcessing(context.Background(), doc.ID))

	extracted := &models.ExtractedInvoice{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-1001",
		TotalAmount:   149.99,
		Currency:      "USD",
	}
	require.NoError(t, m.CompleteProcessing(context.Background(), doc.ID, extracted))

	got, err := m.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, got.Status)
	require.NotNil(t, got.Extracted)
	assert.Equal(t, "Acme Corp", got.Extracted.VendorName)
}

func TestCompleteProcessingRequiresExtractedData(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)
	require.NoError(t, m.BeginProcessing(context.Background(), doc.ID))

	err = m.CompleteProcessing(context.Background(), doc.ID, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extracted data is required")
}

func TestCompleteProcessingFromUploadingFails(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)

	err = m.CompleteProcessing(context.Background(), doc.ID, &models.ExtractedInvoice{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-1001",
	})
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestFailProcessing(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)
	require.NoError(t, m.BeginProcessing(context.Background(), doc.ID))

	require.NoError(t, m.FailProcessing(context.Background(), doc.ID, "no extractable text"))

	got, err := m.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "no extractable text", *got.ErrorMessage)
	assert.True(t, got.Terminal())
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)
	require.NoError(t, m.BeginProcessing(context.Background(), doc.ID))
	require.NoError(t, m.FailProcessing(context.Background(), doc.ID, "boom"))

	err = m.FailProcessing(context.Background(), doc.ID, "again")
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	err = m.BeginProcessing(context.Background(), doc.ID)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestExpiryFixedAtCreation(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	doc, err := m.CreateDocument(context.Background(), createRequest())
	require.NoError(t, err)
	originalExpiry := doc.ExpiresAt

	require.NoError(t, m.BeginProcessing(context.Background(), doc.ID))
	require.NoError(t, m.CompleteProcessing(context.Background(), doc.ID, &models.ExtractedInvoice{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-1001",
	}))

	got, err := m.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, originalExpiry, got.ExpiresAt)
	assert.False(t, got.Expired(originalExpiry.Add(-time.Minute)))
	assert.True(t, got.Expired(originalExpiry.Add(time.Minute)))
}

func TestGetMissingDocument(t *testing.T) {
	m := NewManager(storetest.NewMemoryDocumentStore())

	_, err := m.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}
