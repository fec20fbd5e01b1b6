package models

import (
	"time"

	"github.com/google/uuid"
)

// Document statuses. Transitions are strictly
// uploading -> processing -> completed | error; completed and error are terminal.
const (
	DocStatusUploading  = "uploading"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusError      = "error"
)

type Document struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	ObjectPath    string            `json:"object_path" db:"object_path"`
	FileName      string            `json:"file_name" db:"file_name"`
	FileType      string            `json:"file_type" db:"file_type"`
	FileSizeBytes int64             `json:"file_size_bytes" db:"file_size_bytes"`
	Status        string            `json:"status" db:"status"`
	Extracted     *ExtractedInvoice `json:"extracted_data,omitempty" db:"extracted_data"`
	ErrorMessage  *string           `json:"error_message,omitempty" db:"error_message"`
	ExpiresAt     time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the document is past its retention window.
func (d *Document) Expired(now time.Time) bool {
	return d.ExpiresAt.Before(now)
}

// Terminal reports whether the document reached a final status.
func (d *Document) Terminal() bool {
	return d.Status == DocStatusCompleted || d.Status == DocStatusError
}

// ExtractedInvoice holds the structured fields pulled out of an invoice
// by the extraction pipeline. Present only on completed documents.
type ExtractedInvoice struct {
	VendorName    string            `json:"vendor_name"`
	InvoiceNumber string            `json:"invoice_number"`
	InvoiceDate   string            `json:"invoice_date,omitempty"`
	DueDate       string            `json:"due_date,omitempty"`
	TotalAmount   float64           `json:"total_amount"`
	TaxAmount     float64           `json:"tax_amount,omitempty"`
	Currency      string            `json:"currency"`
	LineItems     []InvoiceLineItem `json:"line_items,omitempty"`
}

type InvoiceLineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}
