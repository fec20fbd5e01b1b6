// Package audit writes the append-only trail of lifecycle transitions and
// approval actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

type Entry struct {
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Actor        string
	Details      map[string]any
}

func (s *Service) Log(ctx context.Context, entry Entry) error {
	details, _ := json.Marshal(entry.Details)

	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_logs (action, resource_type, resource_id, actor, details)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.Action, entry.ResourceType, entry.ResourceID, entry.Actor, details,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type Record struct {
	ID           uuid.UUID       `json:"id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Actor        string          `json:"actor"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    string          `json:"created_at"`
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, action, resource_type, resource_id, actor, details, created_at::text
		 FROM audit_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Action, &r.ResourceType, &r.ResourceID, &r.Actor, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}
