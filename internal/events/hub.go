package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"PGWDash/internal/cache"
	log "PGWDash/internal/log"
	"PGWDash/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"
)

// StreamConsole 控制台唯一的广播流
const StreamConsole = "console"

// 事件类型
const (
	TypeWorkflow = "workflow"
	TypeCache    = "cache"
	TypeAuth     = "auth"
)

// Message 推送给浏览器的消息
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time time.Time   `json:"time"`
}

// AuthEvent 登录状态变化，Redirect 为浏览器应跳转的路径
type AuthEvent struct {
	Redirect string `json:"redirect"`
}

// Hub 把工作流、缓存和登录事件推送到浏览器
type Hub struct {
	server      *sse.Server
	subscribers atomic.Int64

	mu        sync.Mutex
	unsubs    []func()
	closeOnce sync.Once
}

// NewHub 创建 SSE 推送中心
func NewHub() *Hub {
	h := &Hub{}
	srv := sse.New()
	srv.AutoStream = false
	// 状态以接口查询为准，不重放历史事件
	srv.AutoReplay = false
	srv.Headers = map[string]string{
		"Cache-Control":     "no-cache, no-store, must-revalidate",
		"X-Accel-Buffering": "no",
	}
	srv.OnSubscribe = func(streamID string, _ *sse.Subscriber) {
		n := h.subscribers.Add(1)
		log.Debugf("[SSE] 客户端已连接 stream=%s 当前=%d", streamID, n)
	}
	srv.OnUnsubscribe = func(streamID string, _ *sse.Subscriber) {
		n := h.subscribers.Add(-1)
		log.Debugf("[SSE] 客户端已断开 stream=%s 当前=%d", streamID, n)
	}
	srv.CreateStream(StreamConsole)
	h.server = srv
	return h
}

// Attach 订阅缓存与工作流事件
func (h *Hub) Attach(c *cache.Cache, registry *workflow.Registry) {
	unsub := c.Subscribe(h.PublishCache)
	registry.AddListener(h.PublishWorkflow)

	h.mu.Lock()
	h.unsubs = append(h.unsubs, unsub)
	h.mu.Unlock()
}

// Subscribers 当前连接数
func (h *Hub) Subscribers() int {
	return int(h.subscribers.Load())
}

// PublishWorkflow 实现 workflow.Listener，推送前隐藏结果中的密码
func (h *Hub) PublishWorkflow(s workflow.Snapshot) {
	h.publish(TypeWorkflow, s.Redacted())
}

// PublishCache 实现 cache.Listener
func (h *Hub) PublishCache(e cache.Event) {
	h.publish(TypeCache, e)
}

// Redirect 实现 auth.Navigator
func (h *Hub) Redirect(path string) {
	h.publish(TypeAuth, AuthEvent{Redirect: path})
}

func (h *Hub) publish(kind string, data interface{}) {
	payload, err := json.Marshal(Message{Type: kind, Data: data, Time: time.Now()})
	if err != nil {
		log.Warnf("[SSE] 序列化 %s 事件失败: %v", kind, err)
		return
	}
	h.server.Publish(StreamConsole, &sse.Event{
		ID:    []byte(uuid.NewString()),
		Event: []byte(kind),
		Data:  payload,
	})
}

// ServeHTTP 所有客户端都订阅同一个广播流
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.Clone(r.Context())
	q := r.URL.Query()
	q.Set("stream", StreamConsole)
	r.URL.RawQuery = q.Encode()
	h.server.ServeHTTP(w, r)
}

// Handler gin 处理函数
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Close 取消订阅并断开所有客户端，可重复调用
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		unsubs := h.unsubs
		h.unsubs = nil
		h.mu.Unlock()

		for _, fn := range unsubs {
			fn()
		}
		h.server.Close()
		log.Infof("[SSE] 推送服务已关闭")
	})
}
