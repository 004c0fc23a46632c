// Package session provides Valkey-backed auth session records. Every
// issued access token names a session by its token id; deleting the record
// revokes the token before it expires.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL matches the default access token lifetime.
	DefaultTTL = 90 * 24 * time.Hour

	// keyPrefix namespaces session keys in Valkey to avoid collisions.
	keyPrefix = "session:"

	// userPrefix keys the set of session ids held by one user.
	userPrefix = "user_sessions:"

	// idLength is the byte length of the random session ID (32 bytes = 64 hex chars).
	idLength = 32
)

// Data holds the session payload stored in Valkey.
type Data struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	UserAgent string    `json:"user_agent,omitempty"`
	RemoteIP  string    `json:"remote_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages session lifecycle in Valkey.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store backed by the given Valkey client.
// A zero ttl uses DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// TTL returns how long sessions live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create stores a new session and indexes it under the user. Returns the
// session ID.
func (s *Store) Create(ctx context.Context, data *Data) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}

	data.CreatedAt = time.Now()

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("session marshal: %w", err)
	}

	userKey := userPrefix + data.UserID.String()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyPrefix+id, payload, s.ttl)
		p.SAdd(ctx, userKey, id)
		p.Expire(ctx, userKey, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("session store: %w", err)
	}

	return id, nil
}

// Get retrieves session data. Returns nil if the session does not exist
// or has expired.
func (s *Store) Get(ctx context.Context, id string) (*Data, error) {
	if id == "" {
		return nil, nil
	}
	payload, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("session unmarshal: %w", err)
	}

	return &data, nil
}

// Destroy removes one session.
func (s *Store) Destroy(ctx context.Context, id string) error {
	data, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keyPrefix+id)
		p.SRem(ctx, userPrefix+data.UserID.String(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	return nil
}

// DestroyAllForUser removes every session of userID except keep, which may
// be empty. Returns how many sessions were removed.
func (s *Store) DestroyAllForUser(ctx context.Context, userID uuid.UUID, keep string) (int, error) {
	userKey := userPrefix + userID.String()
	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("session list for user: %w", err)
	}

	var removed int
	for _, id := range ids {
		if id == keep {
			continue
		}
		if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
			return removed, fmt.Errorf("session destroy: %w", err)
		}
		s.client.SRem(ctx, userKey, id)
		removed++
	}

	slog.Debug("user sessions revoked", "user_id", userID, "removed", removed)
	return removed, nil
}

// generateID creates a cryptographically random session identifier.
func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
