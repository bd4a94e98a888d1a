package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/gt06-gateway/internal/session/redisstore"
)

// PersistentStore is the subset of redisstore.Store the registry
// depends on, narrowed to an interface so tests can substitute an
// in-memory fake instead of a live Redis connection.
type PersistentStore interface {
	Save(ctx context.Context, rec *redisstore.Record, ttl time.Duration) error
	SaveIMEIIndex(ctx context.Context, imei, id string, ttl time.Duration) error
	GetByID(ctx context.Context, id string) (*redisstore.Record, error)
	GetIDByIMEI(ctx context.Context, imei string) (string, error)
	Delete(ctx context.Context, id, imei string) error
}

// Registry is the process-wide session registry (spec §4.4). Exactly
// one instance is constructed at startup and passed explicitly to
// every connection worker — no ambient singleton (spec §9 "Global
// mutable state").
type Registry struct {
	store       PersistentStore
	idleTimeout time.Duration

	mu           sync.RWMutex
	byID         map[string]*DeviceSession
	byIMEI       map[string]string // imei -> id
	byConnection map[string]string // connID -> id

	imeiLocks keyedLocker
}

// New constructs a Registry. store may be nil, in which case the
// registry degrades to memory-only operation (RegistryUnavailable,
// spec §7): reads return whatever is in memory, writes are skipped.
func New(store PersistentStore, idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = 600 * time.Second
	}
	return &Registry{
		store:        store,
		idleTimeout:  idleTimeout,
		byID:         make(map[string]*DeviceSession),
		byIMEI:       make(map[string]string),
		byConnection: make(map[string]string),
		imeiLocks:    newKeyedLocker(),
	}
}

// CreateOrRebind implements the spec §4.4 operation of the same name:
// if imei already has a session, it is rebound to connID/remoteAddr
// (channel_id, remote_address, last_activity_at updated, TTL touched)
// and returned; otherwise a fresh session is created and persisted.
// variant is recorded only when a new session is created — spec §4.5
// "Variant detection" mandates the classification happen once, at the
// first login, and never be recomputed on a later rebind. The whole
// operation runs inside a per-IMEI critical section so concurrent
// logins for the same device observe either the prior state or the
// fully-applied new state, never a partial update (spec §5 "Shared
// state").
func (r *Registry) CreateOrRebind(ctx context.Context, imei, connID, remoteAddr string, variant Variant) (*DeviceSession, error) {
	unlock := r.imeiLocks.lock(imei)
	defer unlock()

	now := time.Now()

	r.mu.Lock()
	if id, ok := r.byIMEI[imei]; ok {
		if sess, ok := r.byID[id]; ok {
			oldConn := sess.ConnectionID
			sess.ConnectionID = connID
			sess.RemoteAddress = remoteAddr
			sess.LastActivityAt = now
			sess.Authenticated = true
			if oldConn != "" && oldConn != connID {
				delete(r.byConnection, oldConn)
			}
			r.byConnection[connID] = id
			snapshot := sess.clone()
			r.mu.Unlock()
			r.persist(ctx, snapshot)
			return snapshot, nil
		}
	}

	sess := &DeviceSession{
		ID:             uuid.NewString(),
		IMEI:           imei,
		ConnectionID:   connID,
		RemoteAddress:  remoteAddr,
		CreatedAt:      now,
		LastActivityAt: now,
		Authenticated:  true,
		DeviceVariant:  variant,
		Attributes:     make(map[string]string),
	}
	r.byID[sess.ID] = sess
	r.byIMEI[imei] = sess.ID
	r.byConnection[connID] = sess.ID
	snapshot := sess.clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return snapshot, nil
}

// GetByConnection looks up the session currently bound to connID.
func (r *Registry) GetByConnection(connID string) (*DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConnection[connID]
	if !ok {
		return nil, false
	}
	sess, ok := r.byID[id]
	return sess.clone(), ok
}

// GetByIMEI looks up the session for imei, falling back to the
// persistent store when it is not resident in memory (e.g. after a
// process restart, since by_connection never survives one anyway).
func (r *Registry) GetByIMEI(ctx context.Context, imei string) (*DeviceSession, bool) {
	r.mu.RLock()
	id, ok := r.byIMEI[imei]
	if ok {
		sess, ok := r.byID[id]
		r.mu.RUnlock()
		return sess.clone(), ok
	}
	r.mu.RUnlock()

	if r.store == nil {
		return nil, false
	}
	rid, err := r.store.GetIDByIMEI(ctx, imei)
	if err != nil {
		return nil, false
	}
	return r.loadFromStore(ctx, rid)
}

// GetByID looks up a session by its id, consulting the persistent
// store on a local cache miss.
func (r *Registry) GetByID(ctx context.Context, id string) (*DeviceSession, bool) {
	r.mu.RLock()
	sess, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return sess.clone(), true
	}
	return r.loadFromStore(ctx, id)
}

func (r *Registry) loadFromStore(ctx context.Context, id string) (*DeviceSession, bool) {
	if r.store == nil {
		return nil, false
	}
	rec, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, false
	}
	return fromRecord(rec), true
}

// Save writes session back (updating in-memory state and refreshing
// the persisted TTL). Callers hold no lock on the session they pass
// in; Save copies fields under the registry's own lock.
func (r *Registry) Save(ctx context.Context, session *DeviceSession) error {
	unlock := r.imeiLocks.lock(session.IMEI)
	defer unlock()

	r.mu.Lock()
	existing, ok := r.byID[session.ID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	*existing = *session.clone()
	snapshot := existing.clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return nil
}

// RemoveByConnection removes the by_connection binding for connID and
// clears the bound session's ConnectionID. The by_id and by_imei
// indices, in memory and in the persistent store, are left in place;
// the session record goes away only via store TTL or Evict.
func (r *Registry) RemoveByConnection(connID string) {
	r.mu.Lock()
	id, ok := r.byConnection[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byConnection, connID)
	sess, ok := r.byID[id]
	if ok && sess.ConnectionID == connID {
		sess.ConnectionID = ""
	}
	r.mu.Unlock()
}

// Len reports the number of sessions currently resident in memory, for
// the gauge an operator polls to watch registry size over time.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ListAll returns a snapshot of every session currently resident in
// memory, for the admin read surface (spec §5 "Admin read surface").
// It never consults the persistent store — only sessions this process
// has touched since startup are visible.
func (r *Registry) ListAll() []*DeviceSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DeviceSession, 0, len(r.byID))
	for _, sess := range r.byID {
		out = append(out, sess.clone())
	}
	return out
}

// FindIdle returns sessions whose LastActivityAt is older than
// maxIdle.
func (r *Registry) FindIdle(maxIdle time.Duration) []*DeviceSession {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []*DeviceSession
	for _, sess := range r.byID {
		if sess.LastActivityAt.Before(cutoff) {
			idle = append(idle, sess.clone())
		}
	}
	return idle
}

// Evict removes a session from all three indices and from the
// persistent store. Used by the TTL sweeper (spec §4.4 "TTL sweeper").
func (r *Registry) Evict(ctx context.Context, id string) {
	r.mu.RLock()
	found, ok := r.byID[id]
	var lockIMEI string
	if ok {
		lockIMEI = found.IMEI
	}
	r.mu.RUnlock()
	if !ok {
		return
	}
	unlock := r.imeiLocks.lock(lockIMEI)
	defer unlock()

	r.mu.Lock()
	sess, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	delete(r.byIMEI, sess.IMEI)
	if sess.ConnectionID != "" {
		delete(r.byConnection, sess.ConnectionID)
	}
	imei := sess.IMEI
	r.mu.Unlock()

	if r.store != nil {
		_ = r.store.Delete(ctx, id, imei)
	}
}

func (r *Registry) persist(ctx context.Context, sess *DeviceSession) {
	if r.store == nil {
		return
	}
	rec := toRecord(sess)
	_ = r.store.Save(ctx, rec, r.idleTimeout)
	_ = r.store.SaveIMEIIndex(ctx, sess.IMEI, sess.ID, r.idleTimeout)
}

func toRecord(s *DeviceSession) *redisstore.Record {
	return &redisstore.Record{
		ID:                      s.ID,
		IMEI:                    s.IMEI,
		ConnectionID:            s.ConnectionID,
		RemoteAddress:           s.RemoteAddress,
		CreatedAt:               s.CreatedAt,
		LastActivityAt:          s.LastActivityAt,
		Authenticated:           s.Authenticated,
		DeviceVariant:           string(s.DeviceVariant),
		HasReceivedStatusAdvice: s.HasReceivedStatusAdvice,
		HasReceivedLocation:     s.HasReceivedLocation,
		Attributes:              s.Attributes,
	}
}

func fromRecord(rec *redisstore.Record) *DeviceSession {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &DeviceSession{
		ID:                      rec.ID,
		IMEI:                    rec.IMEI,
		ConnectionID:            rec.ConnectionID,
		RemoteAddress:           rec.RemoteAddress,
		CreatedAt:               rec.CreatedAt,
		LastActivityAt:          rec.LastActivityAt,
		Authenticated:           rec.Authenticated,
		DeviceVariant:           Variant(rec.DeviceVariant),
		HasReceivedStatusAdvice: rec.HasReceivedStatusAdvice,
		HasReceivedLocation:     rec.HasReceivedLocation,
		Attributes:              attrs,
	}
}
