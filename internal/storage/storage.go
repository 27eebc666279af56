package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/permitclaim/internal/config"
)

// PermitStore handles permit records
type PermitStore interface {
	CreatePermit(ctx context.Context, p *Permit) error
	GetPermit(ctx context.Context, nonce string) (*Permit, error)
	ListPermits(ctx context.Context, filter PermitFilter, pagination PaginationParams) (*PaginatedResult[Permit], error)
	UpdatePermitTxHash(ctx context.Context, nonce, txHash string) error
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	PermitStore
	APIKeyStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Permit is a stored reward. Integers are decimal strings since nonces and
// amounts are 256-bit values. The nonce is unique across records.
type Permit struct {
	ID              string
	Seq             int64
	Nonce           string
	Kind            string
	NetworkID       int64
	Owner           string
	Token           string
	Amount          string
	Deadline        string
	Beneficiary     string
	RequestedAmount string
	Signature       string
	NFTMetadata     map[string]string
	TxHash          string
	CreatedAt       string
	UpdatedAt       string
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// PermitFilter contains filter options for listing permits
type PermitFilter struct {
	Owner       string
	Beneficiary string
	NetworkID   int64
	Claimed     *bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
