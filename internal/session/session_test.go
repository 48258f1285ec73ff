package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioclinics/backoffice/internal/roles"
)

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "staff",
		"exp": exp.Unix(),
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return token
}

func TestUserIDAliases(t *testing.T) {
	cases := []struct {
		name string
		user map[string]any
		want *int64
	}{
		{"id", map[string]any{"id": float64(4)}, ptr(4)},
		{"id_user", map[string]any{"id_user": "12"}, ptr(12)},
		{"userId", map[string]any{"userId": float64(7)}, ptr(7)},
		{"prefers id", map[string]any{"id": float64(1), "userId": float64(9)}, ptr(1)},
		{"missing", map[string]any{"name": "x"}, nil},
		{"nil user", nil, nil},
		{"garbage", map[string]any{"id": "abc"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Session{User: tc.user}.UserID()
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func TestRoleFromUser(t *testing.T) {
	assert.Equal(t, roles.Admin, Session{User: map[string]any{"idRole": float64(2)}}.Role())
	assert.Equal(t, roles.Staff, Session{User: map[string]any{"role": "staff"}}.Role())
	assert.Equal(t, roles.Role(0), Session{User: map[string]any{"idRole": float64(8)}}.Role())
}

func TestExpiresAtReadsUnverifiedClaim(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	sess := Session{Token: tokenExpiringAt(t, exp)}

	got, ok := sess.ExpiresAt()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
	assert.False(t, sess.Expired(time.Now()))
	assert.True(t, sess.Expired(exp.Add(time.Second)))

	_, ok = Session{Token: "not-a-jwt"}.ExpiresAt()
	assert.False(t, ok)
	assert.False(t, Session{Token: "not-a-jwt"}.Expired(time.Now()))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, empty.Authenticated())

	require.NoError(t, store.Save(ctx, Session{Token: "tok", User: map[string]any{"id": 3, "username": "staff"}}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.Token)
	require.NotNil(t, loaded.UserID())
	assert.Equal(t, int64(3), *loaded.UserID())

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	cleared, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, cleared.Authenticated())
}

func TestFileStoreCorruptUserRestoresAsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bioclinics_token":"tok","bioclinics_user":"{not json"}`), 0o600))

	sess, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.Token)
	assert.Nil(t, sess.User)
	assert.Nil(t, sess.UserID())
}

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "caja-1"), mr
}

func TestRedisStoreExpiresWithToken(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	token := tokenExpiringAt(t, time.Now().Add(10*time.Minute))

	require.NoError(t, store.Save(ctx, Session{Token: token, User: map[string]any{"id_user": 5}}))
	assert.True(t, mr.Exists("bioclinics:session:caja-1:bioclinics_token"))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.UserID())
	assert.Equal(t, int64(5), *loaded.UserID())

	mr.FastForward(11 * time.Minute)
	gone, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, gone.Authenticated())
}

func TestManagerDropsExpiredSessionOnRestore(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	manager := NewManager(store)

	token := tokenExpiringAt(t, time.Now().Add(time.Hour))
	require.NoError(t, manager.Login(ctx, token, map[string]any{"id": 2}))
	assert.Equal(t, token, manager.Token())

	later := NewManager(store)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	restored := later.Restore(ctx)
	assert.False(t, restored.Authenticated())

	require.NoError(t, manager.Logout(ctx))
	assert.Empty(t, manager.Token())
	assert.Nil(t, manager.UserID())
}

func ptr(v int64) *int64 { return &v }
