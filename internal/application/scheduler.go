package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// DefaultCooldown is the minimum interval between successive uses of a
// single credential.
const DefaultCooldown = 6 * time.Second

// RateLimitedError is returned by Scheduler.Lease when the least-recently-
// used credential in the pool is still inside its cooldown window.
type RateLimitedError struct {
	// RetryAfter is the remaining cooldown of the oldest credential.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("all credentials used within cooldown, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds returns the remainder rounded up to whole seconds, as
// surfaced in the retry-after response header.
func (e *RateLimitedError) RetryAfterSeconds() int {
	return int((e.RetryAfter.Milliseconds() + 999) / 1000)
}

// Scheduler leases credentials for proxied requests: it picks the
// least-recently-used credential in a pool, enforces the per-credential
// cooldown, and records the use. The select, cooldown check, and
// reservation run under a per-pool lock; without it two concurrent requests
// could both observe the same credential before either reservation is
// visible and bypass the cooldown.
//
// In-process locking is sufficient because the store is owned by exactly
// one process for its whole lifetime.
type Scheduler struct {
	store    driven.KeyStore
	cooldown time.Duration
	now      func() time.Time // injectable clock for tests

	mu    sync.Mutex
	pools map[string]*poolLock
}

// poolLock serializes leases for one pool. refs counts goroutines holding
// or waiting on the lock; the map entry is removed when it reaches zero, so
// caller-supplied pool names (bearer tokens in pool-token mode) never grow
// the map beyond the number of in-flight leases.
type poolLock struct {
	mu   sync.Mutex
	refs int
}

// NewScheduler creates a Scheduler over store. A non-positive cooldown
// falls back to DefaultCooldown.
func NewScheduler(store driven.KeyStore, cooldown time.Duration) *Scheduler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Scheduler{
		store:    store,
		cooldown: cooldown,
		now:      time.Now,
		pools:    make(map[string]*poolLock),
	}
}

// acquirePool takes the lock serializing leases for pool, creating it on
// first use.
func (s *Scheduler) acquirePool(pool string) *poolLock {
	s.mu.Lock()
	l, ok := s.pools[pool]
	if !ok {
		l = &poolLock{}
		s.pools[pool] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

// releasePool drops the pool lock and deletes the map entry once no other
// lease holds or awaits it.
func (s *Scheduler) releasePool(pool string, l *poolLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.pools, pool)
	}
	s.mu.Unlock()
}

// Lease selects the least-recently-used credential in pool, verifies its
// cooldown has elapsed, and marks it used before returning it. Returns
// driven.ErrNoCredential for an empty pool and *RateLimitedError when every
// credential is still cooling down. A lease is never refunded: if the
// caller abandons the request afterwards, last_used keeps the reservation,
// so rapid retries cannot bypass the cooldown.
func (s *Scheduler) Lease(ctx context.Context, pool string) (*model.Credential, error) {
	lock := s.acquirePool(pool)
	defer s.releasePool(pool, lock)

	cred, err := s.store.LeastRecentlyUsed(ctx, pool)
	if err != nil {
		return nil, err
	}

	lastUsed, err := s.store.LastUsed(ctx, cred.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	elapsed := now - lastUsed
	if cooldownMs := s.cooldown.Milliseconds(); elapsed < cooldownMs {
		return nil, &RateLimitedError{
			RetryAfter: time.Duration(cooldownMs-elapsed) * time.Millisecond,
		}
	}

	if err := s.store.MarkUsed(ctx, cred.ID, now); err != nil {
		return nil, fmt.Errorf("reserve credential %d: %w", cred.ID, err)
	}

	cred.LastUsed = now
	return cred, nil
}
