package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	log "PGWDash/internal/log"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"

	"github.com/google/uuid"
)

// State 工作流状态
type State string

const (
	StateIdle      State = "idle"
	StateInFlight  State = "in-flight"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ErrInFlight 工作流正在执行，拒绝重复调用
var ErrInFlight = errors.New("操作正在进行中，请稍候")

// Func 工作流的具体执行逻辑
type Func func(ctx context.Context) (interface{}, error)

// Snapshot 工作流状态快照，供视图层渲染
type Snapshot struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	State      State       `json:"state"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Runs       int         `json:"runs"`
}

// Listener 状态变化回调
type Listener func(Snapshot)

// Workflow 单个变更操作的状态机：idle -> in-flight -> succeeded|failed，可重复调用
type Workflow struct {
	id   string
	kind string

	mu         sync.Mutex
	state      State
	result     interface{}
	err        error
	startedAt  time.Time
	finishedAt time.Time
	runs       int

	notify func(Snapshot)
}

// New 创建独立的工作流（不经过 Registry）
func New(kind string) *Workflow {
	return &Workflow{id: uuid.NewString(), kind: kind, state: StateIdle}
}

func (w *Workflow) ID() string   { return w.id }
func (w *Workflow) Kind() string { return w.kind }

// State 当前状态
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err 最近一次失败的错误
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Result 最近一次的结果，失败时也可能有值（例如批量操作的逐项结果）
func (w *Workflow) Result() interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// Snapshot 返回状态快照
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Redacted 结果中的密码等敏感字段已隐藏，用于对外输出
func (s Snapshot) Redacted() Snapshot {
	s.Result = models.Redact(s.Result)
	return s
}

func (w *Workflow) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:     w.id,
		Kind:   w.kind,
		State:  w.state,
		Result: w.result,
		Runs:   w.runs,
	}
	if w.err != nil {
		s.Error = pgwapi.Message(w.err, "操作失败")
	}
	if !w.startedAt.IsZero() {
		t := w.startedAt
		s.StartedAt = &t
	}
	if !w.finishedAt.IsZero() {
		t := w.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Run 执行工作流并阻塞到结束。
// 执行中再次调用返回 ErrInFlight；401 会让工作流回到 idle，且不记录错误。
func (w *Workflow) Run(ctx context.Context, fn Func) (interface{}, error) {
	w.mu.Lock()
	if w.state == StateInFlight {
		w.mu.Unlock()
		return nil, ErrInFlight
	}
	w.state = StateInFlight
	w.err = nil
	w.result = nil
	w.startedAt = time.Now()
	w.finishedAt = time.Time{}
	w.runs++
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.emit(snap)

	result, err := fn(ctx)

	w.mu.Lock()
	w.finishedAt = time.Now()
	switch {
	case err == nil:
		w.state = StateSucceeded
		w.result = result
	case errors.Is(err, pgwapi.ErrUnauthorized):
		// 登录失效由全局跳转处理，不作为普通错误展示
		w.state = StateIdle
		w.result = nil
	default:
		w.state = StateFailed
		w.result = result
		w.err = err
	}
	snap = w.snapshotLocked()
	w.mu.Unlock()

	if err != nil && !errors.Is(err, pgwapi.ErrUnauthorized) {
		log.Warnf("[Workflow] %s(%s) 失败: %v", w.kind, w.id, err)
	} else {
		log.Debugf("[Workflow] %s(%s) -> %s", w.kind, w.id, snap.State)
	}
	w.emit(snap)
	return result, err
}

func (w *Workflow) emit(s Snapshot) {
	if w.notify != nil {
		w.notify(s)
	}
}

// Registry 管理工作流实例，并把状态变化分发给监听者
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
	order     []string
	limit     int

	lmu       sync.RWMutex
	listeners []Listener
}

// NewRegistry limit 为保留的已结束工作流数量上限，<=0 表示 200
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = 200
	}
	return &Registry{workflows: make(map[string]*Workflow), limit: limit}
}

// AddListener 注册监听者
func (r *Registry) AddListener(l Listener) {
	r.lmu.Lock()
	r.listeners = append(r.listeners, l)
	r.lmu.Unlock()
}

// New 创建并登记一个工作流
func (r *Registry) New(kind string) *Workflow {
	w := New(kind)
	w.notify = r.dispatch

	r.mu.Lock()
	r.workflows[w.id] = w
	r.order = append(r.order, w.id)
	r.pruneLocked()
	r.mu.Unlock()
	return w
}

// Get 按ID查找
func (r *Registry) Get(id string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[id]
	return w, ok
}

// Start 创建工作流并立即执行
func (r *Registry) Start(ctx context.Context, kind string, fn Func) (*Workflow, error) {
	w := r.New(kind)
	_, err := w.Run(ctx, fn)
	return w, err
}

// pruneLocked 超出上限时丢弃最早的已结束工作流
func (r *Registry) pruneLocked() {
	for len(r.order) > r.limit {
		dropped := false
		for i, id := range r.order {
			w := r.workflows[id]
			if w != nil && w.State() == StateInFlight {
				continue
			}
			delete(r.workflows, id)
			r.order = append(r.order[:i], r.order[i+1:]...)
			dropped = true
			break
		}
		if !dropped {
			return
		}
	}
}

func (r *Registry) dispatch(s Snapshot) {
	r.lmu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.lmu.RUnlock()

	for _, l := range listeners {
		l(s)
	}
}
