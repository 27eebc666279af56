package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgTimeLayout = "2006-01-02 15:04:05"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Permits
	CREATE TABLE IF NOT EXISTS permits (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		nonce TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		network_id BIGINT NOT NULL,
		owner TEXT NOT NULL,
		token TEXT NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		deadline NUMERIC(78, 0) NOT NULL,
		beneficiary TEXT NOT NULL,
		requested_amount NUMERIC(78, 0) NOT NULL,
		signature TEXT NOT NULL,
		nft_metadata JSONB,
		tx_hash TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_permits_owner ON permits(lower(owner));
	CREATE INDEX IF NOT EXISTS idx_permits_beneficiary ON permits(lower(beneficiary));
	CREATE INDEX IF NOT EXISTS idx_permits_unclaimed ON permits(seq) WHERE tx_hash IS NULL;
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

const pgPermitColumns = `seq, id, nonce, kind, network_id, owner, token, amount::text, deadline::text, beneficiary,
	requested_amount::text, signature, nft_metadata, tx_hash, created_at, updated_at`

// CreatePermit stores a permit; a permit with the same nonce yields ErrAlreadyExists
func (s *PostgresStore) CreatePermit(ctx context.Context, p *Permit) error {
	if p.ID == "" {
		p.ID = generateID()
	}
	metadata, err := encodeMetadata(p.NFTMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO permits (id, nonce, kind, network_id, owner, token, amount, deadline, beneficiary,
			requested_amount, signature, nft_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (nonce) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.Nonce, p.Kind, p.NetworkID, p.Owner, p.Token, p.Amount, p.Deadline, p.Beneficiary,
		p.RequestedAmount, p.Signature, metadata,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetPermit retrieves a permit by nonce
func (s *PostgresStore) GetPermit(ctx context.Context, nonce string) (*Permit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgPermitColumns+` FROM permits WHERE nonce = $1`, nonce)
	p, err := scanPostgresPermit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPermits lists permits in insertion order with cursor-based pagination
func (s *PostgresStore) ListPermits(ctx context.Context, filter PermitFilter, pagination PaginationParams) (*PaginatedResult[Permit], error) {
	after, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}

	conds := []string{"seq > $1"}
	args := []any{after}
	argNum := 2
	if filter.Owner != "" {
		conds = append(conds, fmt.Sprintf("lower(owner) = lower($%d)", argNum))
		args = append(args, filter.Owner)
		argNum++
	}
	if filter.Beneficiary != "" {
		conds = append(conds, fmt.Sprintf("lower(beneficiary) = lower($%d)", argNum))
		args = append(args, filter.Beneficiary)
		argNum++
	}
	if filter.NetworkID != 0 {
		conds = append(conds, fmt.Sprintf("network_id = $%d", argNum))
		args = append(args, filter.NetworkID)
		argNum++
	}
	if filter.Claimed != nil {
		if *filter.Claimed {
			conds = append(conds, "tx_hash IS NOT NULL")
		} else {
			conds = append(conds, "tx_hash IS NULL")
		}
	}
	args = append(args, pagination.Limit+1)

	query := fmt.Sprintf(`SELECT %s FROM permits WHERE %s ORDER BY seq LIMIT $%d`,
		pgPermitColumns, strings.Join(conds, " AND "), argNum)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permits []Permit
	for rows.Next() {
		p, err := scanPostgresPermit(rows)
		if err != nil {
			return nil, err
		}
		permits = append(permits, *p)
	}

	hasMore := len(permits) > pagination.Limit
	if hasMore {
		permits = permits[:pagination.Limit]
	}
	var nextCursor string
	if hasMore && len(permits) > 0 {
		nextCursor = strconv.FormatInt(permits[len(permits)-1].Seq, 10)
	}

	return &PaginatedResult[Permit]{
		Data:       permits,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, rows.Err()
}

// UpdatePermitTxHash records the claim transaction of the permit with the given nonce
func (s *PostgresStore) UpdatePermitTxHash(ctx context.Context, nonce, txHash string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE permits SET tx_hash = $1, updated_at = NOW() WHERE nonce = $2", txHash, nonce)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPostgresPermit(row rowScanner) (*Permit, error) {
	var p Permit
	var metadata []byte
	var txHash sql.NullString
	var createdAt time.Time
	var updatedAt sql.NullTime
	err := row.Scan(
		&p.Seq, &p.ID, &p.Nonce, &p.Kind, &p.NetworkID, &p.Owner, &p.Token, &p.Amount, &p.Deadline, &p.Beneficiary,
		&p.RequestedAmount, &p.Signature, &metadata, &txHash, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.NFTMetadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	p.TxHash = txHash.String
	p.CreatedAt = createdAt.UTC().Format(pgTimeLayout)
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time.UTC().Format(pgTimeLayout)
	}
	return &p, nil
}

// CreateAPIKey creates a new API key
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name) VALUES ($1, $2, $3)", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = createdAt.UTC().Format(pgTimeLayout)
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var createdAt time.Time
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = createdAt.UTC().Format(pgTimeLayout)
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time.UTC().Format(pgTimeLayout)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
