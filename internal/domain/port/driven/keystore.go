package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
)

// ErrNoCredential is returned by KeyStore.LeastRecentlyUsed when the
// requested pool contains no credentials.
var ErrNoCredential = errors.New("no credential available")

// KeyStore defines the driven port for persistent credential state.
// Timestamps are milliseconds since the Unix epoch.
type KeyStore interface {
	// LeastRecentlyUsed returns the credential in pool with the smallest
	// last_used value, ties broken by smallest id. Returns ErrNoCredential
	// when the pool is empty.
	LeastRecentlyUsed(ctx context.Context, pool string) (*model.Credential, error)

	// LastUsed returns the stored last_used timestamp for id. A missing row
	// yields (0, nil), never an error.
	LastUsed(ctx context.Context, id int64) (int64, error)

	// MarkUsed unconditionally sets last_used for id to ts.
	MarkUsed(ctx context.Context, id int64, ts int64) error

	// CountByPool returns how many credentials are provisioned in pool.
	CountByPool(ctx context.Context, pool string) (int, error)
}

// KeyAdminStore extends KeyStore with the out-of-band provisioning
// operations used by the keyadmin CLI. The proxy itself never writes rows
// except through KeyStore.MarkUsed.
type KeyAdminStore interface {
	KeyStore

	// Add inserts a credential and returns it with the assigned id.
	// LastUsed starts at 0 regardless of the input value.
	Add(ctx context.Context, cred model.Credential) (model.Credential, error)

	// ListByPool returns all credentials in pool ordered by id.
	ListByPool(ctx context.Context, pool string) ([]model.Credential, error)
}
