package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "auth:token:"

// Principal is the identity bound to a token.
type Principal struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// TokenStore keeps opaque bearer tokens in Redis with a TTL.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl, now: time.Now}
}

// Issue creates a token for p.
func (s *TokenStore) Issue(ctx context.Context, p Principal) (Token, error) {
	value, err := randomToken()
	if err != nil {
		return Token{}, err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return Token{}, err
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+value, payload, s.ttl).Err(); err != nil {
		return Token{}, fmt.Errorf("auth: store token: %w", err)
	}
	return Token{Value: value, ExpiresAt: s.now().Add(s.ttl).UTC()}, nil
}

// Lookup resolves a token to its principal.
func (s *TokenStore) Lookup(ctx context.Context, value string) (*Principal, error) {
	if value == "" {
		return nil, ErrInvalidToken
	}
	payload, err := s.client.Get(ctx, tokenKeyPrefix+value).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load token: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, ErrInvalidToken
	}
	return &p, nil
}

// Revoke deletes a token. Unknown tokens are ignored.
func (s *TokenStore) Revoke(ctx context.Context, value string) error {
	if err := s.client.Del(ctx, tokenKeyPrefix+value).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
