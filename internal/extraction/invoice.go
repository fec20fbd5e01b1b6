package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/invoiceflow/invoiceflow/internal/llm"
	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/pkg/textextract"
)

const systemPrompt = `You are an invoice data extraction engine. You must respond with ONLY a valid JSON object matching this schema:

{
  "vendor_name": <string> (REQUIRED) // legal name of the issuing vendor,
  "invoice_number": <string> (REQUIRED) // vendor-assigned invoice identifier,
  "invoice_date": <string> // issue date, ISO 8601,
  "due_date": <string> // payment due date, ISO 8601,
  "total_amount": <number> (REQUIRED) // grand total including tax,
  "tax_amount": <number> // total tax,
  "currency": <string> (REQUIRED) // ISO 4217 code,
  "line_items": <array> // [{"description", "quantity", "unit_price", "amount"}]
}

Do not include any text outside the JSON object. No markdown, no explanation.`

// InvoiceExtractor downloads the artifact, pulls plain text out of it and
// asks the configured model for structured invoice fields.
type InvoiceExtractor struct {
	objects storage.Storage
	gateway llm.Gateway
	model   string
}

func NewInvoiceExtractor(objects storage.Storage, gateway llm.Gateway, model string) *InvoiceExtractor {
	return &InvoiceExtractor{
		objects: objects,
		gateway: gateway,
		model:   model,
	}
}

func (x *InvoiceExtractor) Extract(ctx context.Context, objectPath, fileType string) (*models.ExtractedInvoice, error) {
	reader, err := x.objects.Download(ctx, objectPath)
	if err != nil {
		// storage.ErrObjectNotFound passes through untouched so callers can
		// distinguish a reaper race from a real failure.
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, extractionErr("download", err)
	}

	text, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), fileType)
	if err != nil {
		return nil, extractionErr("text", err)
	}
	if strings.TrimSpace(text.Content) == "" {
		return nil, extractionErr("text", fmt.Errorf("no extractable text in %s", objectPath))
	}

	resp, err := x.gateway.Chat(ctx, llm.ChatRequest{
		Model: x.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text.Content},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, extractionErr("model", err)
	}

	invoice, err := parseInvoice(resp.Content)
	if err != nil {
		return nil, extractionErr("parse", err)
	}
	return invoice, nil
}

func parseInvoice(content string) (*models.ExtractedInvoice, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var invoice models.ExtractedInvoice
	if err := json.Unmarshal([]byte(content), &invoice); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	if invoice.VendorName == "" {
		return nil, fmt.Errorf("model response missing vendor name")
	}
	if invoice.InvoiceNumber == "" {
		return nil, fmt.Errorf("model response missing invoice number")
	}
	return &invoice, nil
}
