package localsession

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pontoweb/auth-service/internal/core/domain"
)

const (
	// SessionKey is the fixed key the session blob lives under.
	SessionKey = "ponto.session"

	// LegacyKey is the blob location used by earlier releases; it is purged
	// on every clear for backward compatibility.
	LegacyKey = "ponto.auth"
)

// blob is the stored shape: the resolved user, the backend access token,
// and the issue timestamp in unix milliseconds.
type blob struct {
	User        domain.User `json:"user"`
	AccessToken string      `json:"access_token,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

// Store caches the authenticated session locally with a fixed validity
// window. Expiry is lazy: every read re-validates, and any invalid state
// (expired, corrupt, missing timestamp) is treated as absent and purged.
// Persistence failures are logged and swallowed; the in-memory session is
// the caller's source of truth.
type Store struct {
	mu  sync.Mutex
	kv  KV
	ttl time.Duration
	now func() time.Time
}

// NewStore returns a Store over kv whose sessions are valid for ttl.
func NewStore(kv KV, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl, now: time.Now}
}

// Save persists the session blob, overwriting any prior entry. A failed
// write is logged and swallowed so sign-in still succeeds in memory.
func (s *Store) Save(user domain.User, accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(blob{
		User:        user,
		AccessToken: accessToken,
		Timestamp:   s.now().UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode local session")
		return
	}

	if err := s.kv.Set(SessionKey, string(data)); err != nil {
		log.Error().Err(err).Msg("Failed to persist local session")
	}
}

// Load returns the cached user, or nil when the entry is absent, corrupt,
// missing its timestamp, or older than the validity window. Every invalid
// case clears the store as a side effect.
func (s *Store) Load() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.load()
	if b == nil {
		return nil
	}
	return &b.User
}

// Token returns the cached access token, or empty when no valid session
// is stored.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.load()
	if b == nil {
		return ""
	}
	return b.AccessToken
}

// IsValid reports whether a non-expired session is currently stored.
func (s *Store) IsValid() bool {
	return s.Load() != nil
}

// Clear removes the session blob from both the primary and the legacy
// location. It is idempotent and never fails the caller; removal errors
// are logged and swallowed.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// load re-validates the stored entry. Caller holds the lock.
func (s *Store) load() *blob {
	raw, ok, err := s.kv.Get(SessionKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read local session")
		return nil
	}
	if !ok {
		return nil
	}

	var b blob
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		log.Warn().Err(err).Msg("Corrupt local session, clearing")
		s.clear()
		return nil
	}

	if b.Timestamp == 0 {
		log.Warn().Msg("Local session missing timestamp, clearing")
		s.clear()
		return nil
	}

	issuedAt := time.UnixMilli(b.Timestamp)
	if s.now().Sub(issuedAt) > s.ttl {
		s.clear()
		return nil
	}

	return &b
}

// clear removes both storage locations. Caller holds the lock.
func (s *Store) clear() {
	if err := s.kv.Delete(SessionKey); err != nil {
		log.Error().Err(err).Msg("Failed to clear local session")
	}
	if err := s.kv.Delete(LegacyKey); err != nil {
		log.Error().Err(err).Msg("Failed to clear legacy session entry")
	}
}
