package models

import "time"

// AuthToken 本地持久化的登录令牌，表中至多一行
type AuthToken struct {
	ID        int64      `gorm:"primaryKey;column:id"`
	Sealed    string     `gorm:"type:text;not null;column:sealed"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime;column:updated_at"`
}

// TableName 设置表名
func (AuthToken) TableName() string {
	return "auth_tokens"
}

// AuthTokenRowID 唯一令牌行的主键
const AuthTokenRowID int64 = 1

// ConsoleSession 浏览器登录控制台后获得的会话
type ConsoleSession struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	SessionID string    `gorm:"type:text;uniqueIndex;not null;column:session_id"`
	Email     string    `gorm:"type:text;not null;column:email"`
	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at"`
	ExpiresAt time.Time `gorm:"not null;index;column:expires_at"`
	IsActive  bool      `gorm:"default:true;column:is_active"`
}

// TableName 设置表名
func (ConsoleSession) TableName() string {
	return "console_sessions"
}
