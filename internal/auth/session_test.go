package auth

import (
	"path/filepath"
	"testing"
	"time"

	"PGWDash/internal/cache"
	"PGWDash/internal/db"
	"PGWDash/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openSessionDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(db.DefaultDBConfig(filepath.Join(t.TempDir(), "sessions.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

func TestSessions(t *testing.T) {
	tests := []struct {
		name    string
		withDB  bool
		restart bool
	}{
		{name: "仅内存"},
		{name: "SQLite", withDB: true},
		{name: "SQLite 重启后恢复", withDB: true, restart: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gdb *gorm.DB
			if tt.withDB {
				gdb = openSessionDB(t)
			}
			now := time.Now()
			s := NewSessions(gdb, time.Hour)
			s.now = func() time.Time { return now }

			sess, err := s.CreateSession("a@example.com", nil)
			require.NoError(t, err)
			assert.NotEmpty(t, sess.ID)
			assert.True(t, now.Add(time.Hour).Equal(sess.ExpiresAt))

			if tt.restart {
				s = NewSessions(gdb, time.Hour)
				s.now = func() time.Time { return now }
			}

			got, err := s.ValidateSession(sess.ID)
			require.NoError(t, err)
			assert.Equal(t, "a@example.com", got.Email)

			_, err = s.ValidateSession("")
			assert.ErrorIs(t, err, ErrInvalidSession)
			_, err = s.ValidateSession("forged")
			assert.ErrorIs(t, err, ErrInvalidSession)

			s.DestroySession(sess.ID)
			_, err = s.ValidateSession(sess.ID)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Now()
	s := NewSessions(openSessionDB(t), time.Hour)
	s.now = func() time.Time { return now }

	// 令牌先到期时以令牌为准
	tokenExpiry := now.Add(10 * time.Minute)
	sess, err := s.CreateSession("a@example.com", &tokenExpiry)
	require.NoError(t, err)
	assert.True(t, tokenExpiry.Equal(sess.ExpiresAt))

	s.now = func() time.Time { return tokenExpiry }
	_, err = s.ValidateSession(sess.ID)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestDestroyAllAndRevokeOthers(t *testing.T) {
	gdb := openSessionDB(t)
	s := NewSessions(gdb, time.Hour)

	a1, err := s.CreateSession("a@example.com", nil)
	require.NoError(t, err)
	a2, err := s.CreateSession("a@example.com", nil)
	require.NoError(t, err)
	b, err := s.CreateSession("b@example.com", nil)
	require.NoError(t, err)

	s.RevokeOthers("b@example.com")
	for _, id := range []string{a1.ID, a2.ID} {
		_, err = s.ValidateSession(id)
		assert.ErrorIs(t, err, ErrInvalidSession)
	}
	_, err = s.ValidateSession(b.ID)
	require.NoError(t, err)

	s.DestroyAll()
	_, err = s.ValidateSession(b.ID)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// 重启后也不能恢复
	_, err = NewSessions(gdb, time.Hour).ValidateSession(b.ID)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// 下一次创建会话时清理掉已注销的记录
	_, err = s.CreateSession("b@example.com", nil)
	require.NoError(t, err)
	var rows int64
	require.NoError(t, gdb.Model(&models.ConsoleSession{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestUseSessionsWhenLoggedOut(t *testing.T) {
	gdb := openSessionDB(t)
	s := NewSessions(gdb, time.Hour)
	stale, err := s.CreateSession("a@example.com", nil)
	require.NoError(t, err)

	// 本地没有令牌，上次留下的会话不再有效
	gate := NewGate(NewMemoryTokenStore(), cache.New(), nil)
	gate.UseSessions(NewSessions(gdb, time.Hour))
	_, err = NewSessions(gdb, time.Hour).ValidateSession(stale.ID)
	assert.ErrorIs(t, err, ErrInvalidSession)
}
