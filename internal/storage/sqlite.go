package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Writers wait instead of failing with SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Permits
	CREATE TABLE IF NOT EXISTS permits (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		nonce TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		network_id INTEGER NOT NULL,
		owner TEXT NOT NULL,
		token TEXT NOT NULL,
		amount TEXT NOT NULL,
		deadline TEXT NOT NULL,
		beneficiary TEXT NOT NULL,
		requested_amount TEXT NOT NULL,
		signature TEXT NOT NULL,
		nft_metadata TEXT,
		tx_hash TEXT,
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_permits_owner ON permits(lower(owner));
	CREATE INDEX IF NOT EXISTS idx_permits_beneficiary ON permits(lower(beneficiary));
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

const permitColumns = `seq, id, nonce, kind, network_id, owner, token, amount, deadline, beneficiary,
	requested_amount, signature, nft_metadata, tx_hash, created_at, updated_at`

// CreatePermit stores a permit; a permit with the same nonce yields ErrAlreadyExists
func (s *SQLiteStore) CreatePermit(ctx context.Context, p *Permit) error {
	if p.ID == "" {
		p.ID = generateID()
	}
	metadata, err := encodeMetadata(p.NFTMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO permits (id, nonce, kind, network_id, owner, token, amount, deadline, beneficiary,
			requested_amount, signature, nft_metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
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
func (s *SQLiteStore) GetPermit(ctx context.Context, nonce string) (*Permit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+permitColumns+` FROM permits WHERE nonce = ?`, nonce)
	p, err := scanSQLitePermit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPermits lists permits in insertion order with cursor-based pagination
func (s *SQLiteStore) ListPermits(ctx context.Context, filter PermitFilter, pagination PaginationParams) (*PaginatedResult[Permit], error) {
	after, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}

	conds := []string{"seq > ?"}
	args := []any{after}
	if filter.Owner != "" {
		conds = append(conds, "lower(owner) = lower(?)")
		args = append(args, filter.Owner)
	}
	if filter.Beneficiary != "" {
		conds = append(conds, "lower(beneficiary) = lower(?)")
		args = append(args, filter.Beneficiary)
	}
	if filter.NetworkID != 0 {
		conds = append(conds, "network_id = ?")
		args = append(args, filter.NetworkID)
	}
	if filter.Claimed != nil {
		if *filter.Claimed {
			conds = append(conds, "tx_hash IS NOT NULL")
		} else {
			conds = append(conds, "tx_hash IS NULL")
		}
	}
	args = append(args, pagination.Limit+1)

	query := `SELECT ` + permitColumns + ` FROM permits WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY seq LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permits []Permit
	for rows.Next() {
		p, err := scanSQLitePermit(rows)
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
func (s *SQLiteStore) UpdatePermitTxHash(ctx context.Context, nonce, txHash string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE permits SET tx_hash = ?, updated_at = datetime('now') WHERE nonce = ?", txHash, nonce)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePermit(row rowScanner) (*Permit, error) {
	var p Permit
	var metadata, txHash, createdAt, updatedAt sql.NullString
	err := row.Scan(
		&p.Seq, &p.ID, &p.Nonce, &p.Kind, &p.NetworkID, &p.Owner, &p.Token, &p.Amount, &p.Deadline, &p.Beneficiary,
		&p.RequestedAmount, &p.Signature, &metadata, &txHash, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.NFTMetadata, err = decodeMetadata([]byte(metadata.String)); err != nil {
		return nil, err
	}
	p.TxHash = txHash.String
	p.CreatedAt = createdAt.String
	p.UpdatedAt = updatedAt.String
	return &p, nil
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, datetime('now'))", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.String
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ? AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
