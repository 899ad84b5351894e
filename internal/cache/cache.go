package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "PGWDash/internal/log"

	"golang.org/x/sync/singleflight"
)

// Key 实体集合的缓存键
type Key string

const (
	KeyServers  Key = "servers"
	KeyProxies  Key = "proxies"
	KeyGroups   Key = "groups"
	KeyMappings Key = "mappings"
	KeySummary  Key = "summary"
	KeyMe       Key = "me"
)

// ErrUnknownKey 键未注册 Fetcher
var ErrUnknownKey = errors.New("未注册的缓存键")

// Fetcher 从后端拉取某个集合的最新值
type Fetcher func(ctx context.Context) (interface{}, error)

// EventKind 缓存事件类型
type EventKind string

const (
	EventInvalidated EventKind = "invalidated"
	EventRefreshed   EventKind = "refreshed"
	EventFetchFailed EventKind = "fetch_failed"
	EventReset       EventKind = "reset"
)

// Event 推送给订阅者的缓存事件，Reset 事件的 Key 为空
type Event struct {
	Kind EventKind `json:"kind"`
	Key  Key       `json:"key,omitempty"`
	Err  string    `json:"error,omitempty"`
}

// Listener 缓存事件回调
type Listener func(Event)

type entry struct {
	value     interface{}
	has       bool
	stale     bool
	epoch     uint64 // 每次失效自增，用于识别失效前发起的拉取
	fetchedAt time.Time
	err       error
}

type subscription struct {
	mu     sync.Mutex
	active bool
	fn     Listener
}

// Cache 进程级实体缓存。
// 同一个键同时只有一个拉取在进行，失效只做标记，下次读取时才重新拉取。
type Cache struct {
	mu         sync.Mutex
	fetchers   map[Key]Fetcher
	entries    map[Key]*entry
	deps       map[Key][]Key
	generation uint64 // Reset 时自增，丢弃 Reset 之前发起的拉取结果

	flight singleflight.Group

	subMu   sync.Mutex
	subs    map[uint64]*subscription
	nextSub uint64
}

// New 创建缓存，servers 的失效会级联到 proxies（代理内嵌在服务器记录中）
func New() *Cache {
	c := &Cache{
		fetchers: make(map[Key]Fetcher),
		entries:  make(map[Key]*entry),
		deps:     make(map[Key][]Key),
		subs:     make(map[uint64]*subscription),
	}
	c.DependsOn(KeyServers, KeyProxies)
	return c
}

// Register 注册键对应的 Fetcher，重复注册会覆盖
func (c *Cache) Register(key Key, fetcher Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[key] = fetcher
}

// DependsOn 声明 parent 失效时 children 也一并失效
func (c *Cache) DependsOn(parent Key, children ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps[parent] = append(c.deps[parent], children...)
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{stale: true}
		c.entries[key] = e
	}
	return e
}

// Read 读取键的值。
// 新鲜命中直接返回；否则发起（或加入已有的）拉取。
// 拉取失败时返回上一次的值和错误，缓存不会被清空。
func (c *Cache) Read(ctx context.Context, key Key) (interface{}, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.has && !e.stale {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	if _, ok := c.fetchers[key]; !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	c.mu.Unlock()

	ch := c.flight.DoChan(string(key), func() (interface{}, error) {
		return c.fetch(ctx, key)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		// 调用方放弃等待，拉取本身继续完成并写入缓存
		c.mu.Lock()
		var v interface{}
		if e, ok := c.entries[key]; ok && e.has {
			v = e.value
		}
		c.mu.Unlock()
		return v, ctx.Err()
	}
}

func (c *Cache) fetch(ctx context.Context, key Key) (interface{}, error) {
	c.mu.Lock()
	fetcher := c.fetchers[key]
	e := c.entryLocked(key)
	startEpoch := e.epoch
	startGen := c.generation
	c.mu.Unlock()

	// 拉取由多个读者共享，不受第一个读者取消的影响
	val, err := fetcher(context.WithoutCancel(ctx))

	c.mu.Lock()
	if c.generation != startGen {
		// Reset 之后不再写入旧会话的数据
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return val, nil
	}
	e = c.entryLocked(key)
	if err != nil {
		e.err = err
		prev := e.value
		c.mu.Unlock()

		log.Warnf("[Cache] 拉取 %s 失败，保留旧值: %v", key, err)
		c.notify(Event{Kind: EventFetchFailed, Key: key, Err: err.Error()})
		return prev, err
	}

	e.value = val
	e.has = true
	e.err = nil
	e.fetchedAt = time.Now()
	// 拉取期间发生过失效，值照常写入但保持过期，下次读取重新拉取
	e.stale = e.epoch != startEpoch
	c.mu.Unlock()

	log.Debugf("[Cache] 已刷新 %s", key)
	c.notify(Event{Kind: EventRefreshed, Key: key})
	return val, nil
}

// Invalidate 标记键过期（含级联键），不会立即拉取
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	expanded := c.expandLocked(keys)
	for _, key := range expanded {
		e := c.entryLocked(key)
		e.stale = true
		e.epoch++
	}
	c.mu.Unlock()

	if len(expanded) > 0 {
		log.Debugf("[Cache] 失效: %v", expanded)
	}
	for _, key := range expanded {
		c.notify(Event{Kind: EventInvalidated, Key: key})
	}
}

func (c *Cache) expandLocked(keys []Key) []Key {
	seen := make(map[Key]bool)
	var out []Key
	var walk func(k Key)
	walk = func(k Key) {
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
		for _, child := range c.deps[k] {
			walk(child)
		}
	}
	for _, k := range keys {
		walk(k)
	}
	return out
}

// Peek 查看当前值而不触发拉取
func (c *Cache) Peek(key Key) (value interface{}, fresh bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[key]
	if !exists || !e.has {
		return nil, false, false
	}
	return e.value, !e.stale, true
}

// Status 单个键的状态快照
type Status struct {
	Key       Key       `json:"key"`
	HasValue  bool      `json:"has_value"`
	Fresh     bool      `json:"fresh"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Statuses 返回所有已注册键的状态
func (c *Cache) Statuses() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Status, 0, len(c.fetchers))
	for _, key := range []Key{KeyServers, KeyProxies, KeyGroups, KeyMappings, KeySummary, KeyMe} {
		if _, ok := c.fetchers[key]; !ok {
			continue
		}
		st := Status{Key: key}
		if e, ok := c.entries[key]; ok {
			st.HasValue = e.has
			st.Fresh = e.has && !e.stale
			st.FetchedAt = e.fetchedAt
			if e.err != nil {
				st.Error = e.err.Error()
			}
		}
		out = append(out, st)
	}
	return out
}

// Reset 清空所有条目，退出登录时调用
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.generation++
	c.mu.Unlock()

	log.Debugf("[Cache] 已清空")
	c.notify(Event{Kind: EventReset})
}

// Subscribe 订阅缓存事件，返回取消函数。
// 取消函数返回后不会再有回调；不要在回调内部调用取消函数。
func (c *Cache) Subscribe(fn Listener) (unsubscribe func()) {
	sub := &subscription{active: true, fn: fn}

	c.subMu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = sub
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()

			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()
		})
	}
}

func (c *Cache) notify(ev Event) {
	c.subMu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subMu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.active {
			sub.fn(ev)
		}
		sub.mu.Unlock()
	}
}

// Get 读取并断言为具体类型
func Get[T any](ctx context.Context, c *Cache, key Key) (T, error) {
	var zero T
	v, err := c.Read(ctx, key)
	if v == nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("缓存键 %s 类型不匹配: %T", key, v)
	}
	return typed, err
}
