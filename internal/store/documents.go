package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/invoiceflow/internal/models"
)

// StatusPatch carries the optional fields written alongside a status change.
type StatusPatch struct {
	Extracted    *models.ExtractedInvoice
	ErrorMessage *string
}

// DocumentStore is the single source of truth for document state.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	// UpdateStatus performs a conditional update keyed on the expected current
	// status. A caller losing a race gets ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string, patch StatusPatch) error
	DeleteByID(ctx context.Context, id uuid.UUID) error
	QueryExpired(ctx context.Context, now time.Time) ([]models.Document, error)
	List(ctx context.Context, limit, offset int) ([]models.Document, error)
}

type PostgresDocumentStore struct {
	db *pgxpool.Pool
}

func NewDocumentStore(db *pgxpool.Pool) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

const documentColumns = `id, object_path, file_name, file_type, file_size_bytes, status, extracted_data, error_message, expires_at, created_at, updated_at`

func (s *PostgresDocumentStore) Create(ctx context.Context, doc *models.Document) error {
	extracted, err := marshalExtracted(doc.Extracted)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO documents (id, object_path, file_name, file_type, file_size_bytes, status, extracted_data, error_message, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		doc.ID, doc.ObjectPath, doc.FileName, doc.FileType, doc.FileSizeBytes,
		doc.Status, extracted, doc.ErrorMessage, doc.ExpiresAt,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return storageErr("insert document", err)
	}
	return nil
}

func (s *PostgresDocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get document", err)
	}
	return doc, nil
}

func (s *PostgresDocumentStore) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string, patch StatusPatch) error {
	extracted, err := marshalExtracted(patch.Extracted)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}

	// Single conditional statement: the WHERE clause on the expected status
	// serializes concurrent transition attempts at the database.
	tag, err := s.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1,
		     extracted_data = COALESCE($2, extracted_data),
		     error_message = COALESCE($3, error_message),
		     updated_at = now()
		 WHERE id = $4 AND status = $5`,
		next, extracted, patch.ErrorMessage, id, expected,
	)
	if err != nil {
		return storageErr("update document status", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No row matched: distinguish a missing document from a guard violation.
	var current string
	err = s.db.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return storageErr("read document status", err)
	default:
		return fmt.Errorf("document %s is %q, expected %q: %w", id, current, expected, ErrInvalidTransition)
	}
}

func (s *PostgresDocumentStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresDocumentStore) QueryExpired(ctx context.Context, now time.Time) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE expires_at < $1 ORDER BY expires_at`, now)
	if err != nil {
		return nil, storageErr("query expired documents", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (s *PostgresDocumentStore) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]models.Document, error) {
	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("scan document", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate documents", err)
	}
	return docs, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var extracted []byte

	err := row.Scan(&doc.ID, &doc.ObjectPath, &doc.FileName, &doc.FileType,
		&doc.FileSizeBytes, &doc.Status, &extracted, &doc.ErrorMessage,
		&doc.ExpiresAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(extracted) > 0 {
		doc.Extracted = &models.ExtractedInvoice{}
		if err := json.Unmarshal(extracted, doc.Extracted); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
	}
	return &doc, nil
}

func marshalExtracted(inv *models.ExtractedInvoice) ([]byte, error) {
	if inv == nil {
		return nil, nil
	}
	return json.Marshal(inv)
}
