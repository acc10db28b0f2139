package application

import (
	"crypto/subtle"
	"errors"
)

// ErrUnauthenticated is returned when the presented bearer token does not
// authenticate the caller.
var ErrUnauthenticated = errors.New("invalid authentication credentials")

// Authenticator resolves an inbound bearer token to the credential pool the
// caller may lease from. Exactly one implementation is active per process,
// selected by configuration at startup.
type Authenticator interface {
	// ResolvePool returns the pool for token, or ErrUnauthenticated.
	ResolvePool(token string) (string, error)

	// EmptyPoolUnauthenticated reports whether an empty pool discovered at
	// lease time means the caller failed authentication (pool-token mode,
	// where the token names the pool) rather than exhaustion of a
	// provisioned pool.
	EmptyPoolUnauthenticated() bool
}

// StaticTokenAuthenticator authenticates every caller against one shared
// secret. All credentials live in the implicit empty pool.
type StaticTokenAuthenticator struct {
	secret string
}

// NewStaticTokenAuthenticator creates an authenticator for the given shared
// secret.
func NewStaticTokenAuthenticator(secret string) *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{secret: secret}
}

// ResolvePool compares token against the shared secret in constant time.
func (a *StaticTokenAuthenticator) ResolvePool(token string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) != 1 {
		return "", ErrUnauthenticated
	}
	return "", nil
}

// EmptyPoolUnauthenticated is false: in static mode an empty table is a
// provisioning defect caught at startup, so a lease miss is unavailability,
// not an authentication failure.
func (a *StaticTokenAuthenticator) EmptyPoolUnauthenticated() bool { return false }

// PoolTokenAuthenticator interprets the bearer token itself as the pool
// name. Whether the pool exists is only known after the scheduler's select
// step, so an unknown pool surfaces through EmptyPoolUnauthenticated.
type PoolTokenAuthenticator struct{}

// ResolvePool returns the token as the pool name.
func (PoolTokenAuthenticator) ResolvePool(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}

// EmptyPoolUnauthenticated is true: a token naming a pool with no
// credentials never authenticated in the first place.
func (PoolTokenAuthenticator) EmptyPoolUnauthenticated() bool { return true }
