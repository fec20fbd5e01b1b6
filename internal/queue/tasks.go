package queue

const (
	TypeDocumentExtract = "document:extract"
	TypeWebhookDeliver  = "webhook:deliver"
)

type DocumentExtractPayload struct {
	DocumentID string `json:"document_id"`
	InstanceID string `json:"instance_id"`
}

type WebhookDeliverPayload struct {
	SubscriptionID string `json:"subscription_id"`
	Event          string `json:"event"`
	Payload        string `json:"payload"` // JSON string
}
