package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"PGWDash/internal/cache"
	log "PGWDash/internal/log"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
)

// LoginPath 未登录时的跳转目标
const LoginPath = "/login"

var (
	// ErrUnauthenticated 本地没有有效令牌，请求未发出
	ErrUnauthenticated = errors.New("未登录或登录已过期")
	// ErrMissingCredentials 邮箱或密码为空
	ErrMissingCredentials = errors.New("请输入邮箱和密码")
	// ErrEmptyToken 登录响应中没有令牌
	ErrEmptyToken = errors.New("登录响应缺少访问令牌")
)

// Navigator 负责把浏览器引导到指定页面
type Navigator interface {
	Redirect(path string)
}

// NavigatorFunc 函数形式的 Navigator
type NavigatorFunc func(path string)

func (f NavigatorFunc) Redirect(path string) { f(path) }

// State 登录状态
type State struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Gate 登录门禁：持有令牌、处理登录/退出/401 失效，并作为 API 客户端的 TokenSource
type Gate struct {
	store TokenStore
	cache *cache.Cache
	nav   Navigator
	now   func() time.Time

	client *pgwapi.Client

	mu       sync.RWMutex
	token    *Token
	sessions *Sessions
}

// NewGate 创建门禁并从 store 恢复上次的令牌，nav 可为空
func NewGate(store TokenStore, c *cache.Cache, nav Navigator) *Gate {
	g := &Gate{store: store, cache: c, nav: nav, now: time.Now}
	t, err := store.Load()
	if err != nil {
		log.Warnf("[Auth] 读取本地令牌失败: %v", err)
	}
	if t != nil && t.Value != "" {
		if t.Expired(g.now()) {
			log.Infof("[Auth] 本地令牌已过期，需要重新登录")
			if err := store.Clear(); err != nil {
				log.Warnf("[Auth] 清除过期令牌失败: %v", err)
			}
		} else {
			g.token = t
			log.Infof("[Auth] 已恢复本地令牌")
		}
	}
	return g
}

// Bind 关联 API 客户端：注册 401 处理与当前用户的缓存键
func (g *Gate) Bind(client *pgwapi.Client) {
	g.client = client
	client.OnUnauthorized(g.Evict)
	g.cache.Register(cache.KeyMe, func(ctx context.Context) (interface{}, error) {
		return client.Me(ctx)
	})
}

// UseSessions 关联浏览器会话，令牌清除时所有会话一起失效
func (g *Gate) UseSessions(s *Sessions) {
	g.mu.Lock()
	g.sessions = s
	g.mu.Unlock()
	if !g.Authenticated() {
		s.DestroyAll()
	}
}

// SetNavigator 设置跳转处理
func (g *Gate) SetNavigator(nav Navigator) {
	g.mu.Lock()
	g.nav = nav
	g.mu.Unlock()
}

// Token 实现 pgwapi.TokenSource，过期或未登录时返回空串
func (g *Gate) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.token == nil || g.token.Expired(g.now()) {
		return ""
	}
	return g.token.Value
}

// Authenticated 存在未过期的令牌即视为已登录
func (g *Gate) Authenticated() bool {
	return g.Token() != ""
}

// State 当前登录状态
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.token == nil || g.token.Expired(g.now()) {
		return State{}
	}
	s := State{Authenticated: true}
	if g.token.ExpiresAt != nil {
		t := *g.token.ExpiresAt
		s.ExpiresAt = &t
	}
	return s
}

// Guard 受保护的读取在发请求前调用
func (g *Gate) Guard() error {
	if !g.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// Login 登录，成功后持久化令牌与有效期；失败时不保存任何内容
func (g *Gate) Login(ctx context.Context, email, password string) (State, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return State{}, ErrMissingCredentials
	}
	if g.client == nil {
		return State{}, errors.New("API 客户端未初始化")
	}

	resp, err := g.client.Login(ctx, pgwapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		log.Warnf("[Auth] 用户 %s 登录失败: %v", email, err)
		return State{}, err
	}
	if resp.AccessToken == "" {
		return State{}, ErrEmptyToken
	}

	t := Token{Value: resp.AccessToken, ExpiresAt: expiryFor(resp.AccessToken, resp.ExpiresIn, g.now())}
	if err := g.store.Save(t); err != nil {
		log.Errorf("[Auth] 保存令牌失败: %v", err)
		return State{}, err
	}

	g.mu.Lock()
	g.token = &t
	g.mu.Unlock()

	// 新会话不沿用旧会话的数据
	g.cache.Reset()
	if t.ExpiresAt != nil {
		log.Infof("[Auth] 用户 %s 登录成功，令牌有效期至 %s", email, t.ExpiresAt.Format(time.RFC3339))
	} else {
		log.Infof("[Auth] 用户 %s 登录成功", email)
	}
	return g.State(), nil
}

// Logout 主动退出，未登录时为空操作
func (g *Gate) Logout() {
	if g.clear() {
		log.Infof("[Auth] 用户退出登录")
	}
}

// Evict 令牌被后端拒绝（401）时调用，未登录时为空操作
func (g *Gate) Evict() {
	if g.clear() {
		log.Warnf("[Auth] 令牌已失效，跳转登录页")
	}
}

// clear 已经是未登录状态时不做任何事，并发的多个 401 只触发一次跳转
func (g *Gate) clear() bool {
	g.mu.Lock()
	if g.token == nil {
		g.mu.Unlock()
		return false
	}
	g.token = nil
	nav := g.nav
	sessions := g.sessions
	g.mu.Unlock()

	if sessions != nil {
		sessions.DestroyAll()
	}

	if err := g.store.Clear(); err != nil {
		log.Warnf("[Auth] 清除本地令牌失败: %v", err)
	}
	g.cache.Reset()
	if nav != nil {
		nav.Redirect(LoginPath)
	}
	return true
}

// Me 当前用户。未登录时直接返回 ErrUnauthenticated
func (g *Gate) Me(ctx context.Context) (*models.User, error) {
	if err := g.Guard(); err != nil {
		return nil, err
	}
	return cache.Get[*models.User](ctx, g.cache, cache.KeyMe)
}
