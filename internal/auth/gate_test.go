package auth

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"PGWDash/internal/cache"
	"PGWDash/internal/db"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/pgwapi/pgwtest"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNav) Redirect(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *recordingNav) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.paths)
}

type fixture struct {
	gate    *Gate
	client  *pgwapi.Client
	backend *pgwtest.Backend
	store   TokenStore
	cache   *cache.Cache
	nav     *recordingNav
}

func newFixture(t *testing.T, store TokenStore) *fixture {
	t.Helper()
	backend := pgwtest.New(t)
	c := cache.New()
	nav := &recordingNav{}
	gate := NewGate(store, c, nav)
	client := pgwapi.New(pgwapi.Options{
		BaseURL:   backend.URL(),
		Timeout:   2 * time.Second,
		Tokens:    gate,
		Transport: http.DefaultTransport,
	})
	gate.Bind(client)
	c.Register(cache.KeyServers, func(ctx context.Context) (interface{}, error) {
		return client.ListServers(ctx)
	})
	return &fixture{gate: gate, client: client, backend: backend, store: store, cache: c, nav: nav}
}

func TestLoginSendsBearerOnProtectedReads(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())
	ctx := context.Background()

	assert.False(t, f.gate.Authenticated())
	state, err := f.gate.Login(ctx, pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	require.NotNil(t, state.ExpiresAt)

	_, err = f.cache.Read(ctx, cache.KeyServers)
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+pgwtest.DefaultToken, f.backend.LastAuthorization())

	saved, err := f.store.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, pgwtest.DefaultToken, saved.Value)
}

func TestFailedLoginPersistsNothing(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())

	_, err := f.gate.Login(context.Background(), pgwtest.DefaultEmail, "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", pgwapi.Message(err, ""))
	assert.False(t, f.gate.Authenticated())

	saved, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, saved)

	_, err = f.gate.Login(context.Background(), " ", "x")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, 1, f.backend.Hits(http.MethodPost, "/auth/login"))
}

func TestUnauthorizedEvictsAndGuardBlocks(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())
	ctx := context.Background()

	_, err := f.gate.Login(ctx, pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)

	f.backend.Revoke()
	_, err = f.cache.Read(ctx, cache.KeyServers)
	require.Error(t, err)
	assert.ErrorIs(t, err, pgwapi.ErrUnauthorized)

	assert.False(t, f.gate.Authenticated())
	assert.Equal(t, 1, f.nav.count())
	saved, _ := f.store.Load()
	assert.Nil(t, saved)

	before := f.backend.TotalHits()
	_, err = f.gate.Me(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, f.gate.Guard(), ErrUnauthenticated)
	assert.Equal(t, before, f.backend.TotalHits())
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())
	ctx := context.Background()

	_, err := f.gate.Login(ctx, pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)
	_, err = f.cache.Read(ctx, cache.KeyServers)
	require.NoError(t, err)

	f.gate.Logout()
	f.gate.Logout()

	assert.False(t, f.gate.Authenticated())
	assert.Equal(t, 1, f.nav.count())
	_, _, ok := f.cache.Peek(cache.KeyServers)
	assert.False(t, ok)
}

func TestClearWhenLoggedOutIsNoop(t *testing.T) {
	tests := []struct {
		name  string
		login bool
		clear func(g *Gate)
		want  int
	}{
		{name: "未登录时退出", clear: func(g *Gate) { g.Logout() }},
		{name: "未登录时收到401", clear: func(g *Gate) { g.Evict() }},
		{name: "连续多次401只跳转一次", login: true, clear: func(g *Gate) {
			for i := 0; i < 5; i++ {
				g.Evict()
			}
		}, want: 1},
		{name: "退出后再收到401", login: true, clear: func(g *Gate) {
			g.Logout()
			g.Evict()
		}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, NewMemoryTokenStore())
			if tt.login {
				_, err := f.gate.Login(context.Background(), pgwtest.DefaultEmail, pgwtest.DefaultPassword)
				require.NoError(t, err)
			}
			tt.clear(f.gate)
			assert.Equal(t, tt.want, f.nav.count())
			assert.False(t, f.gate.Authenticated())
		})
	}
}

func TestConcurrentEvictRedirectsOnce(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())
	_, err := f.gate.Login(context.Background(), pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.gate.Evict()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.nav.count())
}

func TestClearDestroysSessions(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())
	sessions := NewSessions(nil, time.Hour)
	f.gate.UseSessions(sessions)

	_, err := f.gate.Login(context.Background(), pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)
	sess, err := sessions.CreateSession(pgwtest.DefaultEmail, nil)
	require.NoError(t, err)
	_, err = sessions.ValidateSession(sess.ID)
	require.NoError(t, err)

	f.gate.Evict()
	_, err = sessions.ValidateSession(sess.ID)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMe(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())
	ctx := context.Background()
	_, err := f.gate.Login(ctx, pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)

	user, err := f.gate.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, pgwtest.DefaultEmail, user.Email)

	_, err = f.gate.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.Hits(http.MethodGet, "/auth/me"))
}

func TestExpiryFromJWTWhenExpiresInMissing(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)

	f := newFixture(t, NewMemoryTokenStore())
	f.backend.SetToken(signed)
	f.backend.SetExpiresIn(0)

	state, err := f.gate.Login(context.Background(), pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)
	require.NotNil(t, state.ExpiresAt)
	assert.True(t, exp.Equal(*state.ExpiresAt))
}

func TestOpaqueTokenWithoutExpiry(t *testing.T) {
	f := newFixture(t, NewMemoryTokenStore())
	f.backend.SetExpiresIn(0)

	state, err := f.gate.Login(context.Background(), pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.Nil(t, state.ExpiresAt)
}

func TestExpiredTokenIsUnauthenticated(t *testing.T) {
	store := NewMemoryTokenStore()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(Token{Value: "old", ExpiresAt: &past}))

	gate := NewGate(store, cache.New(), nil)
	assert.False(t, gate.Authenticated())
	assert.Equal(t, "", gate.Token())
	saved, _ := store.Load()
	assert.Nil(t, saved)

	// 运行中过期
	future := time.Now().Add(time.Minute)
	require.NoError(t, store.Save(Token{Value: "fresh", ExpiresAt: &future}))
	gate = NewGate(store, cache.New(), nil)
	assert.True(t, gate.Authenticated())
	gate.now = func() time.Time { return future.Add(time.Second) }
	assert.False(t, gate.Authenticated())
	assert.ErrorIs(t, gate.Guard(), ErrUnauthenticated)
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer("secret-a")
	require.NoError(t, err)

	sealed, err := s.Seal("token-value")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "token-value")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token-value", plain)

	other, err := NewSealer("secret-b")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedCorrupt)

	_, err = s.Open("not base64!")
	assert.ErrorIs(t, err, ErrSealedCorrupt)

	_, err = NewSealer("")
	assert.Error(t, err)
}

func TestGormTokenStore(t *testing.T) {
	gdb, err := db.Open(db.DefaultDBConfig(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(gdb) })

	sealer, err := NewSealer("secret")
	require.NoError(t, err)
	store := NewGormTokenStore(gdb, sealer)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.Save(Token{Value: "v1", ExpiresAt: &exp}))
	require.NoError(t, store.Save(Token{Value: "v2", ExpiresAt: &exp}))

	got, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Value)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, exp.Equal(*got.ExpiresAt))

	var rows int64
	require.NoError(t, gdb.Table("auth_tokens").Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	// 换了密钥后旧令牌作废
	otherSealer, err := NewSealer("rotated")
	require.NoError(t, err)
	got, err = NewGormTokenStore(gdb, otherSealer).Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
}

func TestGateRestoresPersistedToken(t *testing.T) {
	gdb, err := db.Open(db.DefaultDBConfig(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(gdb) })
	sealer, err := NewSealer("secret")
	require.NoError(t, err)

	f := newFixture(t, NewGormTokenStore(gdb, sealer))
	_, err = f.gate.Login(context.Background(), pgwtest.DefaultEmail, pgwtest.DefaultPassword)
	require.NoError(t, err)

	restored := NewGate(NewGormTokenStore(gdb, sealer), cache.New(), nil)
	assert.True(t, restored.Authenticated())
	assert.Equal(t, pgwtest.DefaultToken, restored.Token())
}
