package registry

import (
	"context"
	"time"

	"github.com/taoyao-code/gt06-gateway/internal/session/redisstore"
)

// breaker is satisfied by tcpserver.CircuitBreaker — declared
// structurally here so the registry never imports the transport
// package it happens to be grounded on.
type breaker interface {
	Call(fn func() error) error
}

// CircuitBreakerStore wraps a PersistentStore with a circuit breaker so
// a struggling Redis instance fails fast instead of letting every
// registry operation queue up behind a dead connection (spec §7
// "RegistryUnavailable": reads return empty, writes log and continue).
// The registry already tolerates a nil store and swallowed errors, so
// wrapping changes nothing about its degrade path — it only bounds how
// long a failing store is retried before the breaker opens.
type CircuitBreakerStore struct {
	store PersistentStore
	cb    breaker
}

// WithCircuitBreaker wraps store so every operation runs through cb.
func WithCircuitBreaker(store PersistentStore, cb breaker) *CircuitBreakerStore {
	return &CircuitBreakerStore{store: store, cb: cb}
}

func (c *CircuitBreakerStore) Save(ctx context.Context, rec *redisstore.Record, ttl time.Duration) error {
	return c.cb.Call(func() error { return c.store.Save(ctx, rec, ttl) })
}

func (c *CircuitBreakerStore) SaveIMEIIndex(ctx context.Context, imei, id string, ttl time.Duration) error {
	return c.cb.Call(func() error { return c.store.SaveIMEIIndex(ctx, imei, id, ttl) })
}

func (c *CircuitBreakerStore) GetByID(ctx context.Context, id string) (*redisstore.Record, error) {
	var rec *redisstore.Record
	err := c.cb.Call(func() error {
		r, err := c.store.GetByID(ctx, id)
		rec = r
		return err
	})
	return rec, err
}

func (c *CircuitBreakerStore) GetIDByIMEI(ctx context.Context, imei string) (string, error) {
	var id string
	err := c.cb.Call(func() error {
		v, err := c.store.GetIDByIMEI(ctx, imei)
		id = v
		return err
	})
	return id, err
}

func (c *CircuitBreakerStore) Delete(ctx context.Context, id, imei string) error {
	return c.cb.Call(func() error { return c.store.Delete(ctx, id, imei) })
}
