package middleware

import (
	"net/http"
	"strings"

	"PGWDash/internal/auth"

	"github.com/gin-gonic/gin"
)

// ContextSessionKey gin context 中保存当前会话的键
const ContextSessionKey = "session"

// Guard 拦截未登录的请求，返回 401 并附带跳转目标
type Guard interface {
	Guard() error
}

// SessionValidator 校验浏览器携带的会话ID
type SessionValidator interface {
	ValidateSession(id string) (auth.Session, error)
}

// AuthMiddleware 受保护路由的登录检查：先校验请求自身的会话，再检查服务端令牌，不向后端发请求
func AuthMiddleware(gate Guard, sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := sessions.ValidateSession(SessionToken(c))
		if err == nil {
			err = gate.Guard()
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    err.Error(),
				"redirect": auth.LoginPath,
			})
			return
		}

		c.Set(ContextSessionKey, sess)
		c.Next()
	}
}

// SessionToken 依次从 Authorization: Bearer、会话 Cookie 中取会话ID。
// 浏览器的 EventSource 无法自定义请求头，/api/events 额外允许 query 参数 token
func SessionToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if cookie, err := c.Cookie(auth.SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	if c.Request.Method == http.MethodGet && c.Request.URL.Path == "/api/events" {
		return c.Query("token")
	}
	return ""
}

// CurrentSession 当前请求的会话，未经过 AuthMiddleware 时返回 false
func CurrentSession(c *gin.Context) (auth.Session, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return auth.Session{}, false
	}
	sess, ok := v.(auth.Session)
	return sess, ok
}
