package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// IdempotencyStatus is the state of a ledger reservation.
type IdempotencyStatus string

const (
	IdempotencyStatusInProgress IdempotencyStatus = "IN_PROGRESS"
	IdempotencyStatusCompleted  IdempotencyStatus = "COMPLETED"
)

// IdempotencyRecord reserves a client-supplied key so a retried submission
// returns the original outcome instead of creating a duplicate. (tenant_id,
// key) is unique; a second request with the same key but a different
// fingerprint is a conflict, never a silent overwrite.
type IdempotencyRecord struct {
	TenantID    uuid.UUID         `json:"tenant_id"`
	Key         string            `json:"key"`
	Fingerprint string            `json:"fingerprint"`
	Status      IdempotencyStatus `json:"status"`
	OrderID     *uuid.UUID        `json:"order_id,omitempty"`
	Outcome     []byte            `json:"-"` // Stored response, returned verbatim on replay
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Fingerprint hashes the normalized request body so key reuse with a
// different payload is detectable.
func Fingerprint(normalized []byte) string {
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}
