package ports

import (
	"context"
	"time"

	"groupbuy-core/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption of channel credentials at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService verifies provider webhook signatures (HMAC-SHA256, base64).
type SignatureService interface {
	Sign(channelSecret string, body []byte) string
	// Verify compares in constant time. A mismatch means the body must never
	// be parsed or acted upon.
	Verify(channelSecret string, body []byte, signature string) bool
}

// HashService handles host-user password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles host identity JWT operations.
type TokenService interface {
	Generate(userID, tenantID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed host JWT claims.
type TokenClaims struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     domain.Role
}

// Capability is a closed authorization tag consulted per operation.
type Capability string

const (
	CapOrdersRead       Capability = "orders:read"
	CapOrdersTransition Capability = "orders:transition"
)

// Authorizer is the single authorization function route handlers consult
// before invoking any core component.
type Authorizer interface {
	Can(role domain.Role, cap Capability) bool
}

// --- Service Ports (Business Logic) ---

// IntakeService accepts public order submissions with exactly-once creation
// semantics under client retries.
type IntakeService interface {
	Submit(ctx context.Context, scope domain.ScopeToken, req IntakeRequest) (*IntakeResult, error)
}

// IntakeRequest holds a validated-at-the-boundary public order submission.
type IntakeRequest struct {
	IdempotencyKey string
	CustomerName   string
	CustomerPhone  string
	Items          []IntakeItem
	RawBody        []byte // Normalized body, fingerprinted for key-reuse detection
}

// IntakeItem is one requested line.
type IntakeItem struct {
	VariantID uuid.UUID
	Quantity  int
}

// IntakeResult is the stored outcome of an intake, returned verbatim on replay.
type IntakeResult struct {
	OrderID uuid.UUID          `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Total   int64              `json:"total_amount"`
	Replay  bool               `json:"-"`
}

// LifecycleService is the authoritative entry point for order status
// transitions. A successful transition is the sole trigger for customer-facing
// status notifications.
type LifecycleService interface {
	Transition(ctx context.Context, scope domain.ScopeToken, req TransitionRequest) (*domain.Order, error)
	Get(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, scope domain.ScopeToken, params OrderListParams) ([]domain.Order, int64, error)
}

// TransitionRequest carries a host action plus the caller's last-seen version.
type TransitionRequest struct {
	OrderID         uuid.UUID
	Action          domain.TransitionAction
	ExpectedVersion int64
	ProviderRef     string // Payment provider reference, for confirm-payment
	CarrierRef      string // Carrier reference, for ship
}

// WebhookService authenticates, deduplicates and routes inbound provider events.
type WebhookService interface {
	// VerifySignature checks the raw body against the tenant's channel
	// secret. Nothing is parsed before this passes.
	VerifySignature(ctx context.Context, tenant *domain.Tenant, body []byte, signature string) error
	// Process parses the verified body and routes each event; replayed
	// provider event ids are no-ops returning the stored result.
	Process(ctx context.Context, scope domain.ScopeToken, body []byte) error
}

// AuthService authenticates host users and issues identity tokens.
type AuthService interface {
	Login(ctx context.Context, scope domain.ScopeToken, username, password string) (string, time.Time, error)
}

// MessageSender delivers one outbound message through the external provider.
// retryKey gives the provider a dedup handle; at-least-once is the contract.
type MessageSender interface {
	Push(ctx context.Context, channelToken, to string, payload []byte, retryKey uuid.UUID) error
}
