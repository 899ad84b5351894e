package api

import (
	"net/http"
	"strings"
	"time"

	"PGWDash/internal/auth"
	"PGWDash/internal/middleware"

	"github.com/gin-gonic/gin"
)

// AuthHandler 登录相关处理器
type AuthHandler struct {
	gate     *auth.Gate
	sessions *auth.Sessions
}

// NewAuthHandler 创建登录处理器
func NewAuthHandler(gate *auth.Gate, sessions *auth.Sessions) *AuthHandler {
	return &AuthHandler{gate: gate, sessions: sessions}
}

// SetupAuthRoutes 公开路由：登录、退出、状态
func SetupAuthRoutes(rg *gin.RouterGroup, gate *auth.Gate, sessions *auth.Sessions) {
	h := NewAuthHandler(gate, sessions)
	rg.POST("/auth/login", h.HandleLogin)
	rg.POST("/auth/logout", h.HandleLogout)
	rg.GET("/auth/state", h.HandleState)
}

// SetupMeRoutes 受保护路由：当前用户
func SetupMeRoutes(rg *gin.RouterGroup, gate *auth.Gate, sessions *auth.Sessions) {
	h := NewAuthHandler(gate, sessions)
	rg.GET("/auth/me", h.HandleMe)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin 登录。pgw 令牌留在服务端，浏览器拿到的是会话ID（Cookie 与响应中的 token）
func (h *AuthHandler) HandleLogin(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	state, err := h.gate.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	email := strings.TrimSpace(req.Email)
	h.sessions.RevokeOthers(email)
	sess, err := h.sessions.CreateSession(email, state.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	setSessionCookie(c, sess.ID, int(time.Until(sess.ExpiresAt).Seconds()))

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"state":    state,
		"token":    sess.ID,
		"session":  sess,
		"redirect": "/",
	})
}

// HandleLogout 退出登录，可重复调用。没有有效会话的请求只清除自己的 Cookie
func (h *AuthHandler) HandleLogout(c *gin.Context) {
	if _, err := h.sessions.ValidateSession(middleware.SessionToken(c)); err == nil {
		h.gate.Logout()
	}
	setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true, "redirect": auth.LoginPath})
}

// HandleState 当前请求的登录状态，不访问后端
func (h *AuthHandler) HandleState(c *gin.Context) {
	if _, err := h.sessions.ValidateSession(middleware.SessionToken(c)); err != nil {
		c.JSON(http.StatusOK, auth.State{})
		return
	}
	c.JSON(http.StatusOK, h.gate.State())
}

func setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.SessionCookie, value, maxAge, "/", "", c.Request.TLS != nil, true)
}

// HandleMe 当前用户
func (h *AuthHandler) HandleMe(c *gin.Context) {
	user, err := h.gate.Me(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
