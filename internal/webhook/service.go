// Package webhook notifies subscribers of document and workflow events.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/invoiceflow/internal/queue"
)

// Enqueuer hands deliveries to the background worker.
type Enqueuer interface {
	EnqueueWebhookDeliver(payload queue.WebhookDeliverPayload) error
}

type Subscription struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"secret,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	db       *pgxpool.Pool
	enqueuer Enqueuer
}

func NewService(db *pgxpool.Pool, enqueuer Enqueuer) *Service {
	return &Service{db: db, enqueuer: enqueuer}
}

type CreateRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Subscription, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	eventsJSON, err := json.Marshal(req.Events)
	if err != nil {
		return nil, fmt.Errorf("marshal subscription events: %w", err)
	}

	var sub Subscription
	var events []byte
	err = s.db.QueryRow(ctx,
		`INSERT INTO webhook_subscriptions (url, events, secret, is_active)
		 VALUES ($1, $2, $3, true)
		 RETURNING id, url, events, is_active, created_at`,
		req.URL, eventsJSON, secret,
	).Scan(&sub.ID, &sub.URL, &events, &sub.IsActive, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert webhook subscription: %w", err)
	}
	if sub.Events, err = decodeEvents(events); err != nil {
		return nil, err
	}

	// The secret is returned only on creation.
	sub.Secret = secret
	return &sub, nil
}

func (s *Service) List(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, url, events, is_active, created_at
		 FROM webhook_subscriptions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		var events []byte
		if err := rows.Scan(&sub.ID, &sub.URL, &events, &sub.IsActive, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		if sub.Events, err = decodeEvents(events); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	return err
}

// Dispatch enqueues one delivery per active subscription matching the event.
func (s *Service) Dispatch(ctx context.Context, event string, payload any) error {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM webhook_subscriptions
		 WHERE is_active = true AND events @> $1::jsonb`,
		fmt.Sprintf(`["%s"]`, event),
	)
	if err != nil {
		return fmt.Errorf("find matching subscriptions: %w", err)
	}
	defer rows.Close()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			continue
		}
		if err := s.enqueuer.EnqueueWebhookDeliver(queue.WebhookDeliverPayload{
			SubscriptionID: id.String(),
			Event:          event,
			Payload:        string(body),
		}); err != nil {
			slog.Error("enqueue webhook delivery failed", "subscription_id", id, "event", event, "error", err)
		}
	}
	return rows.Err()
}

// GetWithSecret loads a subscription including its signing secret.
func (s *Service) GetWithSecret(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	var sub Subscription
	var events []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, url, events, secret, is_active, created_at
		 FROM webhook_subscriptions WHERE id = $1`, id,
	).Scan(&sub.ID, &sub.URL, &events, &sub.Secret, &sub.IsActive, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription: %w", err)
	}
	if sub.Events, err = decodeEvents(events); err != nil {
		return nil, err
	}
	return &sub, nil
}

func decodeEvents(raw []byte) ([]string, error) {
	var events []string
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode subscription events: %w", err)
	}
	return events, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
