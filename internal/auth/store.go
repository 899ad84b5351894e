package auth

import (
	"errors"
	"sync"
	"time"

	"PGWDash/internal/db"
	log "PGWDash/internal/log"
	"PGWDash/internal/models"

	"gorm.io/gorm"
)

// Token 登录令牌，ExpiresAt 为空表示未知有效期
type Token struct {
	Value     string
	ExpiresAt *time.Time
}

// Expired 判断令牌在 now 时刻是否已过期
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// TokenStore 令牌持久化，Load 在没有令牌时返回 (nil, nil)
type TokenStore interface {
	Load() (*Token, error)
	Save(Token) error
	Clear() error
}

// MemoryTokenStore 进程内存储，测试与无盘运行时使用
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load() (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, nil
	}
	t := *m.token
	return &t, nil
}

func (m *MemoryTokenStore) Save(t Token) error {
	m.mu.Lock()
	m.token = &t
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
	return nil
}

// GormTokenStore 把令牌加密后保存在 SQLite 的 auth_tokens 表中，表内至多一行
type GormTokenStore struct {
	db     *gorm.DB
	sealer *Sealer
}

func NewGormTokenStore(gdb *gorm.DB, sealer *Sealer) *GormTokenStore {
	return &GormTokenStore{db: gdb, sealer: sealer}
}

func (s *GormTokenStore) Load() (*Token, error) {
	var row models.AuthToken
	err := s.db.First(&row, models.AuthTokenRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	value, err := s.sealer.Open(row.Sealed)
	if err != nil {
		// 密钥已更换，旧令牌作废
		log.Warnf("[Auth] 本地令牌无法解密，已丢弃: %v", err)
		if clearErr := s.Clear(); clearErr != nil {
			log.Warnf("[Auth] 清除无效令牌失败: %v", clearErr)
		}
		return nil, nil
	}
	return &Token{Value: value, ExpiresAt: row.ExpiresAt}, nil
}

func (s *GormTokenStore) Save(t Token) error {
	sealed, err := s.sealer.Seal(t.Value)
	if err != nil {
		return err
	}
	row := models.AuthToken{ID: models.AuthTokenRowID, Sealed: sealed, ExpiresAt: t.ExpiresAt}
	return db.WithRetry(s.db, func(tx *gorm.DB) error {
		return tx.Save(&row).Error
	})
}

func (s *GormTokenStore) Clear() error {
	return db.WithRetry(s.db, func(tx *gorm.DB) error {
		return tx.Delete(&models.AuthToken{}, models.AuthTokenRowID).Error
	})
}
