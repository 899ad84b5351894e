package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtExpiry 读取 JWT 的 exp 声明，不校验签名（签名只有后端能验证）。
// 不是 JWT 或没有 exp 时返回 nil。
func jwtExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// expiryFor 有效期优先取登录响应的 expires_in，其次 JWT exp
func expiryFor(token string, expiresIn int64, now time.Time) *time.Time {
	if expiresIn > 0 {
		t := now.Add(time.Duration(expiresIn) * time.Second)
		return &t
	}
	return jwtExpiry(token)
}
