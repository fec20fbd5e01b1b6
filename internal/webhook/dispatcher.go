package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Dispatcher performs one signed HTTP delivery. Retries are the queue's
// concern, not the dispatcher's.
type Dispatcher struct {
	db         *pgxpool.Pool
	httpClient *http.Client
}

func NewDispatcher(db *pgxpool.Pool) *Dispatcher {
	return &Dispatcher{
		db: db,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (d *Dispatcher) Deliver(ctx context.Context, sub *Subscription, event string, payload []byte) error {
	signature := sign(payload, sub.Secret)

	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		d.recordDelivery(ctx, sub, event, payload, 0)
		return fmt.Errorf("create delivery request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-ID", sub.ID.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.recordDelivery(ctx, sub, event, payload, 0)
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	d.recordDelivery(ctx, sub, event, payload, resp.StatusCode)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) recordDelivery(ctx context.Context, sub *Subscription, event string, payload []byte, status int) {
	var deliveredAt *time.Time
	if status > 0 && status < 400 {
		now := time.Now()
		deliveredAt = &now
	}

	_, err := d.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (subscription_id, event, payload, response_status, delivered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, event, payload, status, deliveredAt,
	)
	if err != nil {
		slog.Error("failed to record webhook delivery", "error", err)
	}
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
