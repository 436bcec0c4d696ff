// Package accountstore implements domain/service.AccountStore on top of
// PostgreSQL, directly grounded on the teacher's raw-SQL repository style in
// internal/infrastructure/persistence/postgres/pending_registration_repository.go
// (QueryRowContext + manual Scan, sql.ErrNoRows -> nil, nil, wrapped errors).
package accountstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
)

// Store implements service.AccountStore against a "accounts" table holding
// one row per tenant-scoped social account and its credential metadata.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection pool at databaseURL and returns a ready
// Store. Callers are responsible for closing the returned *sql.DB via Close.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("accountstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("accountstore: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// GetAccountsByCategory returns every account tagged categoryID for tenantID.
func (s *Store) GetAccountsByCategory(ctx context.Context, tenantID, categoryID string) ([]entity.AccountMetadata, error) {
	query := `
		SELECT account_id, COALESCE(password, ''), COALESCE(proxy, ''), COALESCE(user_agent, ''), COALESCE(endpoint, '')
		FROM accounts
		WHERE tenant_id = $1 AND category_id = $2
		ORDER BY account_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("accountstore: list by category: %w", err)
	}
	defer rows.Close()

	var out []entity.AccountMetadata
	for rows.Next() {
		var meta entity.AccountMetadata
		if err := rows.Scan(&meta.AccountID, &meta.Password, &meta.Proxy, &meta.UserAgent, &meta.Endpoint); err != nil {
			return nil, fmt.Errorf("accountstore: scan account row: %w", err)
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accountstore: iterate accounts: %w", err)
	}
	return out, nil
}

// GetAccount returns one account's metadata by id.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*entity.AccountMetadata, error) {
	query := `
		SELECT account_id, COALESCE(password, ''), COALESCE(proxy, ''), COALESCE(user_agent, ''), COALESCE(endpoint, '')
		FROM accounts
		WHERE account_id = $1
	`
	var meta entity.AccountMetadata
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&meta.AccountID, &meta.Password, &meta.Proxy, &meta.UserAgent, &meta.Endpoint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("accountstore: get account: %w", err)
	}
	return &meta, nil
}

// UpdateTokens writes back rotated credentials after a successful auth
// attempt (spec §4.4). Only non-empty fields in update are applied, so a
// caller rotating access/refresh tokens without a fresh DID/email doesn't
// clobber the stored ones.
func (s *Store) UpdateTokens(ctx context.Context, accountID string, update entity.TokenUpdate) error {
	query := `
		UPDATE accounts
		SET access_token = $2,
			refresh_token = $3,
			did = COALESCE(NULLIF($4, ''), did),
			email = COALESCE(NULLIF($5, ''), email),
			updated_at = NOW()
		WHERE account_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, accountID, update.AccessToken, update.RefreshToken, update.DID, update.Email)
	if err != nil {
		return fmt.Errorf("accountstore: update tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("accountstore: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("accountstore: account %s not found", accountID)
	}
	return nil
}
