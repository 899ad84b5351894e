package dashboard

import (
	"context"
	"net/http"
	"testing"
	"time"

	"PGWDash/internal/cache"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/pgwapi/pgwtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStats(t *testing.T) {
	backend := pgwtest.New(t)
	client := pgwapi.New(pgwapi.Options{
		BaseURL:   backend.URL(),
		Timeout:   2 * time.Second,
		Tokens:    pgwapi.TokenFunc(func() string { return pgwtest.DefaultToken }),
		Transport: http.DefaultTransport,
	})
	c := cache.New()
	c.Register(cache.KeyServers, func(ctx context.Context) (interface{}, error) { return client.ListServers(ctx) })
	svc := NewService(client, c)

	srv := backend.AddServer("edge-1")
	backend.AddProxy(models.Proxy{ServerID: models.Int64Ptr(srv.ID), Host: "a", Port: 1, Health: models.HealthOK})
	backend.AddProxy(models.Proxy{Host: "b", Port: 2, Health: models.HealthFail})
	backend.AddProxy(models.Proxy{Host: "c", Port: 3})

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats.Summary)
	assert.Equal(t, int64(1), stats.Summary.Servers)
	assert.Equal(t, int64(3), stats.Summary.Proxies)
	assert.Equal(t, 2, stats.UnassignedProxies)
	assert.Equal(t, map[models.HealthStatus]int{models.HealthOK: 1, models.HealthFail: 1, models.HealthUnknown: 1}, stats.ProxyHealth)

	require.Len(t, stats.Servers, 1)
	assert.Equal(t, "edge-1", stats.Servers[0].Name)
	assert.False(t, stats.Servers[0].Online)
	assert.Equal(t, 1, stats.Servers[0].ProxyCount)
}

func TestServerOnline(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		server models.Server
		want   bool
	}{
		{name: "状态在线", server: models.Server{Status: models.ServerStatusOnline}, want: true},
		{name: "最近有心跳", server: models.Server{Status: models.ServerStatusOffline, LastSeenAt: models.NewNullTime(now.Add(-time.Minute))}, want: true},
		{name: "心跳过旧", server: models.Server{Status: models.ServerStatusOffline, LastSeenAt: models.NewNullTime(now.Add(-time.Hour))}, want: false},
		{name: "从未上线", server: models.Server{Status: models.ServerStatusOffline}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.server.Online(now))
		})
	}
}
