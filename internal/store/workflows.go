package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/invoiceflow/internal/models"
)

// WorkflowStore persists workflow instances independently of documents.
type WorkflowStore interface {
	Create(ctx context.Context, inst *models.WorkflowInstance) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error)
	Update(ctx context.Context, inst *models.WorkflowInstance) error
	GetActiveByDocument(ctx context.Context, documentID uuid.UUID) (*models.WorkflowInstance, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

type PostgresWorkflowStore struct {
	db *pgxpool.Pool
}

func NewWorkflowStore(db *pgxpool.Pool) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

const workflowColumns = `id, workflow_type, document_id, current_step, status, decision, history, created_at, updated_at`

func (s *PostgresWorkflowStore) Create(ctx context.Context, inst *models.WorkflowInstance) error {
	history, decision, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO workflow_instances (id, workflow_type, document_id, current_step, status, decision, history)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		inst.ID, inst.WorkflowType, inst.DocumentID, inst.CurrentStep, inst.Status, decision, history,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return storageErr("insert workflow instance", err)
	}
	return nil
}

func (s *PostgresWorkflowStore) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflow_instances WHERE id = $1`, id)

	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get workflow instance", err)
	}
	return inst, nil
}

// Update persists the instance conditionally on the updated_at the caller
// read. A racing writer changes updated_at, so the loser's write matches
// zero rows instead of silently overwriting the winner's decision or
// rolling history back to a stale snapshot.
func (s *PostgresWorkflowStore) Update(ctx context.Context, inst *models.WorkflowInstance) error {
	history, decision, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	err = s.db.QueryRow(ctx,
		`UPDATE workflow_instances
		 SET current_step = $1, status = $2, decision = $3, history = $4, updated_at = clock_timestamp()
		 WHERE id = $5 AND updated_at = $6
		 RETURNING updated_at`,
		inst.CurrentStep, inst.Status, decision, history, inst.ID, inst.UpdatedAt,
	).Scan(&inst.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return storageErr("update workflow instance", err)
	}

	// No row matched: distinguish a missing instance from a lost race.
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflow_instances WHERE id = $1)`, inst.ID,
	).Scan(&exists); err != nil {
		return storageErr("check workflow instance", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("instance %s: %w", inst.ID, ErrConcurrentUpdate)
}

func (s *PostgresWorkflowStore) GetActiveByDocument(ctx context.Context, documentID uuid.UUID) (*models.WorkflowInstance, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflow_instances
		 WHERE document_id = $1 AND status = $2`,
		documentID, models.WorkflowStatusRunning)

	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get active workflow instance", err)
	}
	return inst, nil
}

func (s *PostgresWorkflowStore) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM workflow_instances WHERE document_id = $1`, documentID)
	if err != nil {
		return storageErr("delete workflow instances", err)
	}
	return nil
}

func scanInstance(row pgx.Row) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	var decision, history []byte

	err := row.Scan(&inst.ID, &inst.WorkflowType, &inst.DocumentID, &inst.CurrentStep,
		&inst.Status, &decision, &history, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(decision) > 0 {
		inst.Decision = &models.Decision{}
		if err := json.Unmarshal(decision, inst.Decision); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &inst.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return &inst, nil
}

func marshalInstance(inst *models.WorkflowInstance) (history, decision []byte, err error) {
	if inst.History == nil {
		history = []byte("[]")
	} else if history, err = json.Marshal(inst.History); err != nil {
		return nil, nil, fmt.Errorf("marshal history: %w", err)
	}

	if inst.Decision != nil {
		if decision, err = json.Marshal(inst.Decision); err != nil {
			return nil, nil, fmt.Errorf("marshal decision: %w", err)
		}
	}
	return history, decision, nil
}
