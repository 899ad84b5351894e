package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"PGWDash/internal/db"
	log "PGWDash/internal/log"
	"PGWDash/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionCookie 浏览器会话 Cookie 名
const SessionCookie = "pgwdash_session"

// DefaultSessionTTL 会话默认有效期，令牌先到期时以令牌为准
const DefaultSessionTTL = 24 * time.Hour

// ErrInvalidSession 请求没有携带有效的控制台会话
var ErrInvalidSession = errors.New("会话无效或已过期")

// Session 控制台会话。pgw 令牌只保存在服务端，浏览器只持有会话ID
type Session struct {
	ID        string    `json:"-"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Sessions 会话管理：内存缓存 + 可选的 SQLite 持久化（db 为空时只在内存中）
type Sessions struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time

	cache sync.Map // sessionID -> Session
}

func NewSessions(gdb *gorm.DB, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{db: gdb, ttl: ttl, now: time.Now}
}

// CreateSession 创建会话，notAfter 不为空时会话不晚于该时间过期
func (s *Sessions) CreateSession(email string, notAfter *time.Time) (Session, error) {
	s.CleanupExpiredSessions()

	expiresAt := s.now().Add(s.ttl)
	if notAfter != nil && notAfter.Before(expiresAt) {
		expiresAt = *notAfter
	}
	sess := Session{ID: uuid.New().String(), Email: email, ExpiresAt: expiresAt}

	if s.db != nil {
		row := models.ConsoleSession{SessionID: sess.ID, Email: email, ExpiresAt: expiresAt, IsActive: true}
		err := db.WithRetry(s.db, func(tx *gorm.DB) error {
			return tx.Create(&row).Error
		})
		if err != nil {
			return Session{}, fmt.Errorf("保存会话失败: %w", err)
		}
	}

	s.cache.Store(sess.ID, sess)
	return sess, nil
}

// ValidateSession 校验会话，先查缓存再查数据库
func (s *Sessions) ValidateSession(id string) (Session, error) {
	if id == "" {
		return Session{}, ErrInvalidSession
	}
	now := s.now()

	if v, ok := s.cache.Load(id); ok {
		sess := v.(Session)
		if now.Before(sess.ExpiresAt) {
			return sess, nil
		}
		s.DestroySession(id)
		return Session{}, ErrInvalidSession
	}

	if s.db == nil {
		return Session{}, ErrInvalidSession
	}
	var row models.ConsoleSession
	if err := s.db.Where("session_id = ? AND is_active = ?", id, true).First(&row).Error; err != nil {
		return Session{}, ErrInvalidSession
	}
	if !now.Before(row.ExpiresAt) {
		s.DestroySession(id)
		return Session{}, ErrInvalidSession
	}

	sess := Session{ID: row.SessionID, Email: row.Email, ExpiresAt: row.ExpiresAt}
	s.cache.Store(id, sess)
	return sess, nil
}

// DestroySession 销毁单个会话
func (s *Sessions) DestroySession(id string) {
	s.cache.Delete(id)
	if s.db == nil {
		return
	}
	err := s.db.Model(&models.ConsoleSession{}).Where("session_id = ?", id).Update("is_active", false).Error
	if err != nil {
		log.Warnf("[Auth] 注销会话失败: %v", err)
	}
}

// DestroyAll 令牌被清除时调用，所有浏览器都需要重新登录
func (s *Sessions) DestroyAll() {
	s.cache.Range(func(key, _ interface{}) bool {
		s.cache.Delete(key)
		return true
	})
	if s.db == nil {
		return
	}
	err := s.db.Model(&models.ConsoleSession{}).Where("is_active = ?", true).Update("is_active", false).Error
	if err != nil {
		log.Warnf("[Auth] 注销全部会话失败: %v", err)
	}
}

// RevokeOthers 以另一个账号登录后，之前账号的会话不能再使用新令牌
func (s *Sessions) RevokeOthers(email string) {
	s.cache.Range(func(key, value interface{}) bool {
		if value.(Session).Email != email {
			s.cache.Delete(key)
		}
		return true
	})
	if s.db == nil {
		return
	}
	err := s.db.Model(&models.ConsoleSession{}).
		Where("email <> ? AND is_active = ?", email, true).
		Update("is_active", false).Error
	if err != nil {
		log.Warnf("[Auth] 注销其他账号会话失败: %v", err)
	}
}

// CleanupExpiredSessions 删除过期或已注销的会话
func (s *Sessions) CleanupExpiredSessions() {
	now := s.now()
	s.cache.Range(func(key, value interface{}) bool {
		if !now.Before(value.(Session).ExpiresAt) {
			s.cache.Delete(key)
		}
		return true
	})
	if s.db == nil {
		return
	}
	err := s.db.Where("expires_at < ? OR is_active = ?", now, false).Delete(&models.ConsoleSession{}).Error
	if err != nil {
		log.Warnf("[Auth] 清理过期会话失败: %v", err)
	}
}
