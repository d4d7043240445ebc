package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookProcessingStatus is the outcome of routing one provider event.
type WebhookProcessingStatus string

const (
	WebhookProcessed WebhookProcessingStatus = "PROCESSED"
	WebhookIgnored   WebhookProcessingStatus = "IGNORED" // Verified but no handler for the kind
)

// WebhookEventRecord stores the processing result for one provider event id.
// (tenant_id, provider_event_id) is unique; reprocessing the same id returns
// the stored result without reapplying the side effect. The record commits in
// the same transaction as the routed effect.
type WebhookEventRecord struct {
	TenantID        uuid.UUID               `json:"tenant_id"`
	ProviderEventID string                  `json:"provider_event_id"`
	EventType       string                  `json:"event_type"`
	Status          WebhookProcessingStatus `json:"status"`
	ProcessedAt     time.Time               `json:"processed_at"`
}
