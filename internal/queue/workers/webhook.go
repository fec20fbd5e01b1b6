package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/invoiceflow/invoiceflow/internal/queue"
	"github.com/invoiceflow/invoiceflow/internal/webhook"
)

type WebhookWorker struct {
	subscriptions *webhook.Service
	dispatcher    *webhook.Dispatcher
}

func NewWebhookWorker(subs *webhook.Service, dispatcher *webhook.Dispatcher) *WebhookWorker {
	return &WebhookWorker{subscriptions: subs, dispatcher: dispatcher}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	subID, err := uuid.Parse(payload.SubscriptionID)
	if err != nil {
		return fmt.Errorf("parse subscription ID: %w", err)
	}

	sub, err := w.subscriptions.GetWithSecret(ctx, subID)
	if err != nil {
		return err
	}
	if !sub.IsActive {
		return nil
	}

	return w.dispatcher.Deliver(ctx, sub, payload.Event, []byte(payload.Payload))
}
