package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.KeyStore      = (*KeyRepo)(nil)
	_ driven.KeyAdminStore = (*KeyRepo)(nil)
)

// KeyRepo is the SQLite implementation of the KeyStore and KeyAdminStore
// ports. Selection queries go through the reader pool; MarkUsed and Add go
// through the single writer connection.
type KeyRepo struct {
	db *DB
}

// NewKeyRepo creates a new KeyRepo backed by db.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db}
}

// LeastRecentlyUsed returns the credential in pool with the smallest
// last_used value, ties broken by smallest id.
func (r *KeyRepo) LeastRecentlyUsed(ctx context.Context, pool string) (*model.Credential, error) {
	const query = `SELECT id, pool, base_url, secret, last_used
		FROM credentials WHERE pool = ?
		ORDER BY last_used ASC, id ASC LIMIT 1`

	var cred model.Credential
	err := r.db.Reader.QueryRowContext(ctx, query, pool).
		Scan(&cred.ID, &cred.Pool, &cred.BaseURL, &cred.Secret, &cred.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("select least recently used in pool %q: %w", pool, err)
	}
	return &cred, nil
}

// LastUsed returns the stored last_used timestamp for id, or 0 when the row
// does not exist.
func (r *KeyRepo) LastUsed(ctx context.Context, id int64) (int64, error) {
	const query = `SELECT last_used FROM credentials WHERE id = ?`

	var ts int64
	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last_used for credential %d: %w", id, err)
	}
	return ts, nil
}

// MarkUsed sets last_used for id to ts. Updating a missing row is a no-op,
// not an error.
func (r *KeyRepo) MarkUsed(ctx context.Context, id int64, ts int64) error {
	const query = `UPDATE credentials SET last_used = ? WHERE id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, ts, id); err != nil {
		return fmt.Errorf("mark credential %d used: %w", id, err)
	}
	return nil
}

// CountByPool returns how many credentials are provisioned in pool.
func (r *KeyRepo) CountByPool(ctx context.Context, pool string) (int, error) {
	const query = `SELECT COUNT(*) FROM credentials WHERE pool = ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, pool).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials in pool %q: %w", pool, err)
	}
	return n, nil
}

// Add inserts a credential and returns it with the assigned id. last_used
// always starts at 0 so new credentials are first in LRU order.
func (r *KeyRepo) Add(ctx context.Context, cred model.Credential) (model.Credential, error) {
	const query = `INSERT INTO credentials (pool, base_url, secret, last_used) VALUES (?, ?, ?, 0)`

	res, err := r.db.Writer.ExecContext(ctx, query, cred.Pool, cred.BaseURL, cred.Secret)
	if err != nil {
		return model.Credential{}, fmt.Errorf("add credential to pool %q: %w", cred.Pool, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Credential{}, fmt.Errorf("read inserted credential id: %w", err)
	}

	cred.ID = id
	cred.LastUsed = 0
	return cred, nil
}

// ListByPool returns all credentials in pool ordered by id.
func (r *KeyRepo) ListByPool(ctx context.Context, pool string) ([]model.Credential, error) {
	const query = `SELECT id, pool, base_url, secret, last_used
		FROM credentials WHERE pool = ? ORDER BY id ASC`

	rows, err := r.db.Reader.QueryContext(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("list credentials in pool %q: %w", pool, err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		var cred model.Credential
		if err := rows.Scan(&cred.ID, &cred.Pool, &cred.BaseURL, &cred.Secret, &cred.LastUsed); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}
