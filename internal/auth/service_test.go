package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

type memoryRepo struct {
	accounts map[int64]Account
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: map[int64]Account{}, nextID: 1}
}

func (m *memoryRepo) InsertAccount(_ context.Context, acc Account) (int64, error) {
	for _, existing := range m.accounts {
		if existing.Username == acc.Username {
			return 0, ErrUsernameTaken
		}
	}
	acc.ID = m.nextID
	m.nextID++
	m.accounts[acc.ID] = acc
	return acc.ID, nil
}

func (m *memoryRepo) GetAccount(_ context.Context, id int64) (Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (m *memoryRepo) GetAccountByUsername(_ context.Context, username string) (Account, error) {
	for _, acc := range m.accounts {
		if acc.Username == username {
			return acc, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func newTestSessions(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, time.Hour)
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newMemoryRepo()
	sessions := newTestSessions(t)
	svc := NewService(repo, sessions)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "alice", "correct-horse", "Alice", "cashier")
	require.NoError(t, err)
	require.Empty(t, acc.PasswordHash, "hash never leaves the service")

	got, token, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, acc.ID, got.ID)

	sess, err := sessions.Load(ctx, token)
	require.NoError(t, err)
	require.Equal(t, acc.ID, sess.AccountID)
	require.Equal(t, "Alice", sess.DisplayName)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newTestSessions(t))
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "correct-horse", "Alice", "cashier")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)

	_, _, err = svc.Login(ctx, "nobody", "whatever")
	require.ErrorIs(t, err, ErrBadCredentials, "unknown user looks like a bad password")
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := newMemoryRepo()
	sessions := newTestSessions(t)
	svc := NewService(repo, sessions)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "correct-horse", "Alice", "cashier")
	require.NoError(t, err)
	_, token, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = sessions.Load(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestRegisterWeakPassword(t *testing.T) {
	svc := NewService(newMemoryRepo(), newTestSessions(t))
	_, err := svc.Register(context.Background(), "bob", "short", "Bob", "cashier")
	require.ErrorIs(t, err, ErrWeakPassword)
}
