package group

import (
	"context"
	"net/http"
	"testing"
	"time"

	"PGWDash/internal/cache"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/pgwapi/pgwtest"
	"PGWDash/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Service, *pgwtest.Backend, *cache.Cache) {
	t.Helper()
	backend := pgwtest.New(t)
	client := pgwapi.New(pgwapi.Options{
		BaseURL:   backend.URL(),
		Timeout:   2 * time.Second,
		Tokens:    pgwapi.TokenFunc(func() string { return pgwtest.DefaultToken }),
		Transport: http.DefaultTransport,
	})
	c := cache.New()
	c.Register(cache.KeyProxies, func(ctx context.Context) (interface{}, error) {
		return client.ListProxies(ctx)
	})
	c.Register(cache.KeyServers, func(ctx context.Context) (interface{}, error) {
		return client.ListServers(ctx)
	})
	return NewService(client, c, workflow.NewRegistry(0)), backend, c
}

func TestGetGroupsDefaultFirstWithCounts(t *testing.T) {
	svc, backend, _ := setup(t)
	asia := backend.AddGroup("asia")
	backend.AddGroup("Berlin")
	backend.AddProxy(models.Proxy{Host: "10.0.0.1", Port: 1080, GroupID: &asia.ID})
	backend.AddProxy(models.Proxy{Host: "10.0.0.2", Port: 1080, GroupID: &asia.ID})

	groups, err := svc.GetGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.True(t, groups[0].IsDefault)
	assert.Equal(t, "asia", groups[1].Name)
	assert.Equal(t, 2, groups[1].ProxyCount)
	assert.Equal(t, "Berlin", groups[2].Name)

	got, err := svc.GetGroupByID(context.Background(), asia.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "asia", got.Name)

	missing, err := svc.GetGroupByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, 1, backend.Hits(http.MethodGet, "/groups"))
}

func TestCreateGroupInvalidates(t *testing.T) {
	svc, backend, c := setup(t)
	ctx := context.Background()
	_, err := svc.GetGroups(ctx)
	require.NoError(t, err)
	_, err = c.Read(ctx, cache.KeyProxies)
	require.NoError(t, err)

	wf, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "  Europe ", Color: "#00f"})
	require.NoError(t, err)
	created := wf.Result().(Group)
	assert.Equal(t, "Europe", created.Name)

	for _, key := range []cache.Key{cache.KeyGroups, cache.KeyProxies} {
		_, fresh, ok := c.Peek(key)
		assert.True(t, ok, key)
		assert.False(t, fresh, key)
	}

	_, err = svc.CreateGroup(ctx, CreateGroupRequest{Name: "europe"})
	require.Error(t, err)
	assert.Equal(t, "Group name already exists", pgwapi.Message(err, ""))

	_, err = svc.CreateGroup(ctx, CreateGroupRequest{Name: " "})
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, 2, backend.Hits(http.MethodPost, "/groups"))
}

func TestDeleteDefaultGroupRejected(t *testing.T) {
	tests := []struct {
		name     string
		warm     bool
		listDown bool
		wantErr  error
	}{
		{name: "缓存中已有分组列表", warm: true, wantErr: ErrDefaultGroup},
		{name: "缓存为空时先读取分组列表", wantErr: ErrDefaultGroup},
		{name: "分组列表读取失败时不删除", listDown: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, backend, _ := setup(t)
			ctx := context.Background()
			if tt.warm {
				_, err := svc.GetGroups(ctx)
				require.NoError(t, err)
			}
			if tt.listDown {
				backend.Fail(http.MethodGet, "/groups", http.StatusServiceUnavailable, "maintenance")
			}

			wf, err := svc.DeleteGroup(ctx, 1)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.Contains(t, err.Error(), "maintenance")
			}
			assert.Equal(t, workflow.StateFailed, wf.State())
			assert.Equal(t, 0, backend.Hits(http.MethodDelete, "/groups/:id"))
			assert.Equal(t, 1, backend.Hits(http.MethodGet, "/groups"))
		})
	}
}

func TestDeleteGroup(t *testing.T) {
	svc, backend, _ := setup(t)
	g := backend.AddGroup("temp")
	p := backend.AddProxy(models.Proxy{Host: "10.0.0.1", Port: 1080, GroupID: &g.ID})

	wf, err := svc.DeleteGroup(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSucceeded, wf.State())

	after, _ := backend.Proxy(p.ID)
	assert.Nil(t, after.GroupID)
}

func TestRenameDefaultRejected(t *testing.T) {
	svc, backend, _ := setup(t)
	ctx := context.Background()
	_, err := svc.GetGroups(ctx)
	require.NoError(t, err)

	_, err = svc.UpdateGroup(ctx, 1, UpdateGroupRequest{Name: "Main"})
	assert.ErrorIs(t, err, ErrRenameDefault)
	assert.Equal(t, 0, backend.Hits(http.MethodPut, "/groups/:id"))

	// 只改描述允许
	wf, err := svc.UpdateGroup(ctx, 1, UpdateGroupRequest{Name: models.DefaultGroupName, Description: "默认"})
	require.NoError(t, err)
	assert.Equal(t, "默认", wf.Result().(Group).Description)
}
