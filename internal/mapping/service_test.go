package mapping

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

func TestGetMappings(t *testing.T) {
	backend := pgwtest.New(t)
	client := pgwapi.New(pgwapi.Options{
		BaseURL:   backend.URL(),
		Timeout:   2 * time.Second,
		Tokens:    pgwapi.TokenFunc(func() string { return pgwtest.DefaultToken }),
		Transport: http.DefaultTransport,
	})
	svc := NewService(client, cache.New())

	m2 := backend.AddMapping(models.Mapping{ServerID: 2, ClientCIDR: "10.0.0.0/24", DstPorts: models.PortSet{443, 80}, UpstreamProxyID: 7, Enabled: true})
	m1 := backend.AddMapping(models.Mapping{ServerID: 1, ClientCIDR: "10.1.0.0/24", DstPorts: models.PortSet{22}, UpstreamProxyID: 7})
	backend.AddMapping(models.Mapping{ServerID: 2, ClientCIDR: "10.2.0.0/24", UpstreamProxyID: 8})

	ctx := context.Background()
	all, err := svc.GetMappings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, m1.ID, all[0].ID)
	assert.Equal(t, m2.ID, all[1].ID)
	assert.True(t, all[1].DstPorts.Contains(80))
	assert.NotNil(t, all[2].DstPorts)

	byServer, err := svc.GetMappingsByServer(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, byServer, 2)

	byProxy, err := svc.GetMappingsByProxy(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, byProxy, 2)

	// 只拉取一次
	assert.Equal(t, 1, backend.Hits(http.MethodGet, "/mappings"))
}
