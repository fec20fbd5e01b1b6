// Package extraction turns an uploaded invoice artifact into structured
// invoice fields.
package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/invoiceflow/invoiceflow/internal/models"
)

// Extractor is the extraction service: one attempt, one outcome. Retries,
// if any, belong to the caller's scheduler, never here.
type Extractor interface {
	Extract(ctx context.Context, objectPath, fileType string) (*models.ExtractedInvoice, error)
}

// ExtractionError wraps a failed extraction attempt. The lifecycle layer
// captures it into the document's error message; it is not re-thrown past
// that boundary.
type ExtractionError struct {
	Stage string // download, text, model, parse
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionErr(stage string, err error) error {
	return &ExtractionError{Stage: stage, Err: err}
}

// IsExtractionError reports whether err came from the extraction pipeline.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
