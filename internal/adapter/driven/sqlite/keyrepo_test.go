package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

func TestKeyRepo_LeastRecentlyUsed_OrdersByTimestamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	a, err := repo.Add(ctx, model.Credential{BaseURL: "https://a.example.com", Secret: "sk-a"})
	require.NoError(t, err)
	b, err := repo.Add(ctx, model.Credential{BaseURL: "https://b.example.com", Secret: "sk-b"})
	require.NoError(t, err)

	require.NoError(t, repo.MarkUsed(ctx, a.ID, 2000))
	require.NoError(t, repo.MarkUsed(ctx, b.ID, 1000))

	got, err := repo.LeastRecentlyUsed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, int64(1000), got.LastUsed)
}

func TestKeyRepo_LeastRecentlyUsed_TieBreaksBySmallestID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	a, err := repo.Add(ctx, model.Credential{BaseURL: "https://a.example.com", Secret: "sk-a"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, model.Credential{BaseURL: "https://b.example.com", Secret: "sk-b"})
	require.NoError(t, err)

	got, err := repo.LeastRecentlyUsed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID, "equal last_used must resolve to the smallest id")
}

func TestKeyRepo_LeastRecentlyUsed_EmptyPool(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	_, err := repo.LeastRecentlyUsed(ctx, "nosuchpool")
	assert.ErrorIs(t, err, driven.ErrNoCredential)
}

func TestKeyRepo_LeastRecentlyUsed_PoolsAreIsolated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	_, err := repo.Add(ctx, model.Credential{Pool: "alpha", BaseURL: "https://a.example.com", Secret: "sk-a"})
	require.NoError(t, err)
	b, err := repo.Add(ctx, model.Credential{Pool: "beta", BaseURL: "https://b.example.com", Secret: "sk-b"})
	require.NoError(t, err)

	got, err := repo.LeastRecentlyUsed(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, "beta", got.Pool)
}

func TestKeyRepo_LastUsed_MissingRowIsZero(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	ts, err := repo.LastUsed(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
}

func TestKeyRepo_MarkUsed_ReordersSelection(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	a, err := repo.Add(ctx, model.Credential{BaseURL: "https://a.example.com", Secret: "sk-a"})
	require.NoError(t, err)
	b, err := repo.Add(ctx, model.Credential{BaseURL: "https://b.example.com", Secret: "sk-b"})
	require.NoError(t, err)

	require.NoError(t, repo.MarkUsed(ctx, a.ID, 5000))

	got, err := repo.LeastRecentlyUsed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	ts, err := repo.LastUsed(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), ts)
}

func TestKeyRepo_CountByPool(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	n, err := repo.CountByPool(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = repo.Add(ctx, model.Credential{BaseURL: "https://a.example.com", Secret: "sk-a"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, model.Credential{BaseURL: "https://b.example.com", Secret: "sk-b"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, model.Credential{Pool: "alpha", BaseURL: "https://c.example.com", Secret: "sk-c"})
	require.NoError(t, err)

	n, err = repo.CountByPool(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountByPool(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKeyRepo_ListByPool(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepo(db)
	ctx := context.Background()

	a, err := repo.Add(ctx, model.Credential{Pool: "alpha", BaseURL: "https://a.example.com", Secret: "sk-a"})
	require.NoError(t, err)
	b, err := repo.Add(ctx, model.Credential{Pool: "alpha", BaseURL: "https://b.example.com", Secret: "sk-b"})
	require.NoError(t, err)

	creds, err := repo.ListByPool(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, a.ID, creds[0].ID)
	assert.Equal(t, b.ID, creds[1].ID)

	creds, err = repo.ListByPool(ctx, "beta")
	require.NoError(t, err)
	assert.Empty(t, creds)
}

// Simulated restart: last_used values written before Close must still drive
// LRU ordering after the store file is reopened.
func TestKeyRepo_LastUsedSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	ctx := context.Background()

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db.Writer))

	repo := NewKeyRepo(db)
	a, err := repo.Add(ctx, model.Credential{BaseURL: "https://a.example.com", Secret: "sk-a"})
	require.NoError(t, err)
	b, err := repo.Add(ctx, model.Credential{BaseURL: "https://b.example.com", Secret: "sk-b"})
	require.NoError(t, err)
	require.NoError(t, repo.MarkUsed(ctx, a.ID, 7000))
	require.NoError(t, db.Close())

	db2, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })
	// Re-running migrations on an initialized store must be a no-op.
	require.NoError(t, RunMigrations(db2.Writer))

	repo2 := NewKeyRepo(db2)
	got, err := repo2.LeastRecentlyUsed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	ts, err := repo2.LastUsed(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), ts)
}
