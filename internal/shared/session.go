package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session identifies the acting user for the lifetime of a token.
type Session struct {
	Token       string `json:"-"`
	AccountID   int64  `json:"account_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// SessionManager stores bearer-token sessions in Redis.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	return &SessionManager{client: client, ttl: ttl}
}

// ErrSessionNotFound indicates a missing or expired token.
var ErrSessionNotFound = fmt.Errorf("session: %w", ErrUnauthorized)

// Create stores a new session and returns its token.
func (sm *SessionManager) Create(ctx context.Context, sess Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, sm.key(token), payload, sm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Load resolves the session behind a token, refreshing its TTL.
func (sm *SessionManager) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	payload, err := sm.client.Get(ctx, sm.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	sess.Token = token
	_ = sm.client.Expire(ctx, sm.key(token), sm.ttl).Err()
	return &sess, nil
}

// Destroy removes the session behind a token.
func (sm *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return sm.client.Del(ctx, sm.key(token)).Err()
}

func (sm *SessionManager) key(token string) string {
	return "session:" + token
}

func generateToken() (string, error) {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String(), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenFromRequest extracts the bearer token from Authorization.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
