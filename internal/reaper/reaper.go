// Package reaper reclaims documents past their retention window: the backing
// object first, then the record, with per-document isolation of failures.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/invoiceflow/invoiceflow/internal/models"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/internal/store"
)

// Report aggregates one sweep's outcome. Individual failures are logged and
// counted, never propagated.
type Report struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Reaper deletes expired documents. Scheduling is the caller's concern;
// Sweep is safe to invoke directly and concurrently with in-flight
// workflow processing.
type Reaper struct {
	docs      store.DocumentStore
	workflows store.WorkflowStore
	objects   storage.Storage
	now       func() time.Time
}

func New(docs store.DocumentStore, workflows store.WorkflowStore, objects storage.Storage) *Reaper {
	return &Reaper{
		docs:      docs,
		workflows: workflows,
		objects:   objects,
		now:       time.Now,
	}
}

// Sweep deletes every document whose expiry is in the past, regardless of
// status: expiry is absolute, a document mid-processing is still eligible.
// For each document the object is deleted before the record; if the object
// delete fails the record stays and is retried on the next sweep.
func (r *Reaper) Sweep(ctx context.Context) (Report, error) {
	now := r.now().UTC()

	expired, err := r.docs.QueryExpired(ctx, now)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, doc := range expired {
		if err := r.reapOne(ctx, doc); err != nil {
			slog.Error("reap failed",
				"document_id", doc.ID,
				"object_path", doc.ObjectPath,
				"error", err,
			)
			report.Failed++
			continue
		}
		report.Deleted++
	}

	if len(expired) > 0 {
		slog.Info("sweep finished", "deleted", report.Deleted, "failed", report.Failed)
	}
	return report, nil
}

// reapOne deletes the object, then the record, then any workflow instances
// referencing it. The ordering is load-bearing: the record must never be
// removed while the object still exists.
func (r *Reaper) reapOne(ctx context.Context, doc models.Document) error {
	if err := r.objects.Delete(ctx, doc.ObjectPath); err != nil {
		return err
	}
	// A record already gone means a concurrent sweep won the race.
	if err := r.docs.DeleteByID(ctx, doc.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return r.workflows.DeleteByDocument(ctx, doc.ID)
}
