package dashboard

import (
	"context"
	"sort"
	"time"

	"PGWDash/internal/cache"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
)

// Service 仪表盘服务
type Service struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewService 创建仪表盘服务实例，并注册汇总统计的拉取
func NewService(client *pgwapi.Client, c *cache.Cache) *Service {
	c.Register(cache.KeySummary, func(ctx context.Context) (interface{}, error) {
		return client.Summary(ctx)
	})
	return &Service{cache: c, now: time.Now}
}

// GetSummary 服务端计算的汇总统计
func (s *Service) GetSummary(ctx context.Context) (*models.Summary, error) {
	return cache.Get[*models.Summary](ctx, s.cache, cache.KeySummary)
}

// ServerStatusItem 仪表盘中的服务器状态行
type ServerStatusItem struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Online     bool       `json:"online"`
	ProxyCount int        `json:"proxy_count"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

// DashboardStats 仪表盘数据
type DashboardStats struct {
	Summary           *models.Summary             `json:"summary"`
	Servers           []ServerStatusItem          `json:"servers"`
	ProxyHealth       map[models.HealthStatus]int `json:"proxy_health"`
	UnassignedProxies int                         `json:"unassigned_proxies"`
}

// GetStats 汇总统计加上基于服务器列表的派生数据。
// 任一读取失败时尽量返回已有数据，并带上第一个错误。
func (s *Service) GetStats(ctx context.Context) (*DashboardStats, error) {
	summary, sumErr := s.GetSummary(ctx)
	servers, srvErr := cache.Get[[]models.Server](ctx, s.cache, cache.KeyServers)

	stats := &DashboardStats{
		Summary: summary,
		Servers: make([]ServerStatusItem, 0, len(servers)),
		ProxyHealth: map[models.HealthStatus]int{
			models.HealthOK:      0,
			models.HealthFail:    0,
			models.HealthUnknown: 0,
		},
	}

	now := s.now()
	for i := range servers {
		srv := &servers[i]
		for _, p := range srv.Proxies {
			health := p.Health
			if !health.Valid() {
				health = models.HealthUnknown
			}
			stats.ProxyHealth[health]++
		}
		if srv.IsSentinel() {
			stats.UnassignedProxies = len(srv.Proxies)
			continue
		}
		stats.Servers = append(stats.Servers, ServerStatusItem{
			ID:         srv.ID,
			Name:       srv.Name,
			Online:     srv.Online(now),
			ProxyCount: len(srv.Proxies),
			LastSeenAt: srv.LastSeenAt.Ptr(),
		})
	}
	sort.SliceStable(stats.Servers, func(i, j int) bool {
		if stats.Servers[i].Online != stats.Servers[j].Online {
			return stats.Servers[i].Online
		}
		return stats.Servers[i].Name < stats.Servers[j].Name
	})

	if sumErr != nil {
		return stats, sumErr
	}
	return stats, srvErr
}
