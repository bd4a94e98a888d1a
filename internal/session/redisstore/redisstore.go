// Package redisstore persists device sessions' by_id and by_imei
// indices to Redis with a TTL equal to the configured idle timeout
// (spec §6.2). It is the distributed half of the session registry; the
// by_connection index stays process-local and is never written here.
//
// Grounded on the teacher's session.RedisManager key-per-record design
// (session:device:{phyID}, session:conn:{connID}) but adapted to the
// two-key layout spec.md fixes: session:<uuid> and imei-index:<imei>.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	imeiKeyPrefix    = "imei-index:"
)

// ErrNotFound reports a lookup miss that the caller should treat as
// RegistryUnavailable-adjacent: fall back to whatever is in memory.
var ErrNotFound = errors.New("redisstore: record not found")

// Record is the wire-serializable shape of a DeviceSession's durable
// half (spec §6.2). Field names match the JSON layout the spec names
// verbatim; no ordering requirement is implied by struct field order.
type Record struct {
	ID                      string            `json:"id"`
	IMEI                    string            `json:"imei"`
	ConnectionID            string            `json:"channel_id"`
	RemoteAddress           string            `json:"remote_address"`
	CreatedAt               time.Time         `json:"created_at"`
	LastActivityAt          time.Time         `json:"last_activity_at"`
	Authenticated           bool              `json:"authenticated"`
	DeviceVariant           string            `json:"device_variant"`
	HasReceivedStatusAdvice bool              `json:"has_received_status_advice"`
	HasReceivedLocation     bool              `json:"has_received_location"`
	Attributes              map[string]string `json:"attributes"`
}

// Store is a Redis-backed persistence adapter for session records.
type Store struct {
	client *redis.Client
}

// New wraps an existing Redis client. The caller owns the client's
// lifecycle (construction and Close).
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Save writes rec under session:<id> and refreshes its TTL. Callers
// are expected to call SaveIMEIIndex separately so index writes are
// independently retryable on transient failure.
func (s *Store) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+rec.ID, data, ttl).Err()
}

// SaveIMEIIndex writes the imei-index:<imei> -> id mapping with ttl.
func (s *Store) SaveIMEIIndex(ctx context.Context, imei, id string, ttl time.Duration) error {
	return s.client.Set(ctx, imeiKeyPrefix+imei, id, ttl).Err()
}

// GetByID fetches and unmarshals the session record for id.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	val, err := s.client.Get(ctx, sessionKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetIDByIMEI resolves imei to its current session id.
func (s *Store) GetIDByIMEI(ctx context.Context, imei string) (string, error) {
	id, err := s.client.Get(ctx, imeiKeyPrefix+imei).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return id, err
}

// Delete removes both the session and imei-index keys for rec.
func (s *Store) Delete(ctx context.Context, id, imei string) error {
	return s.client.Del(ctx, sessionKeyPrefix+id, imeiKeyPrefix+imei).Err()
}
