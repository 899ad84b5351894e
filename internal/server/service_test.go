package server

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
	return NewService(client, c, workflow.NewRegistry(0)), backend, c
}

func TestCreateServerTagsRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		tagsAsBlob bool
	}{
		{name: "标签为数组"},
		{name: "标签为JSON字符串", tagsAsBlob: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, backend, _ := setup(t)
			if tt.tagsAsBlob {
				backend.TagsAsJSONString()
			}
			ctx := context.Background()

			wf, err := svc.CreateServer(ctx, CreateServerRequest{Name: "edge-1", Tags: []string{"a", "b"}})
			require.NoError(t, err)
			assert.Equal(t, workflow.StateSucceeded, wf.State())
			created := wf.Result().(*models.Server)

			got, err := svc.GetServerByID(ctx, created.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.Tags.Equal(models.Tags{"b", "a"}))
			assert.ElementsMatch(t, []string{"a", "b"}, []string(got.Tags))
		})
	}
}

func TestCreateServerInvalidatesServersAndSummary(t *testing.T) {
	svc, backend, c := setup(t)
	ctx := context.Background()

	_, err := svc.GetServers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Hits(http.MethodGet, "/servers"))

	_, err = svc.CreateServer(ctx, CreateServerRequest{Name: "edge-2", Tags: []string{" x ", "", "x"}})
	require.NoError(t, err)

	_, fresh, ok := c.Peek(cache.KeyServers)
	assert.True(t, ok)
	assert.False(t, fresh)

	servers, err := svc.GetServers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Hits(http.MethodGet, "/servers"))
	require.Len(t, servers, 2)
	// 哨兵服务器排在最前
	assert.True(t, servers[0].IsSentinel())
	assert.Equal(t, []string{"x"}, []string(servers[1].Tags))
}

func TestDeleteSentinelServerRejectedBeforeRequest(t *testing.T) {
	svc, backend, _ := setup(t)

	wf, err := svc.DeleteServer(context.Background(), models.SentinelServerID)
	assert.ErrorIs(t, err, ErrSentinelServer)
	assert.Equal(t, workflow.StateFailed, wf.State())
	assert.Equal(t, 0, backend.TotalHits())
}

func TestDeleteServer(t *testing.T) {
	svc, backend, _ := setup(t)
	s := backend.AddServer("edge-3")

	wf, err := svc.DeleteServer(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSucceeded, wf.State())
	assert.Equal(t, 1, backend.Hits(http.MethodDelete, "/servers/:id"))

	wf, err = svc.DeleteServer(context.Background(), s.ID)
	require.Error(t, err)
	assert.Equal(t, "Server not found", wf.Snapshot().Error)
}

func TestUpdateServer(t *testing.T) {
	svc, backend, _ := setup(t)
	s := backend.AddServer("edge-4", "old")

	name := "edge-4b"
	tags := []string{"new", "new", "blue"}
	wf, err := svc.UpdateServer(context.Background(), s.ID, UpdateServerRequest{Name: &name, Tags: &tags})
	require.NoError(t, err)

	updated := wf.Result().(*models.Server)
	assert.Equal(t, "edge-4b", updated.Name)
	assert.Equal(t, []string{"new", "blue"}, []string(updated.Tags))
	assert.Equal(t, 1, updated.ConfigVersion)

	empty := "  "
	_, err = svc.UpdateServer(context.Background(), s.ID, UpdateServerRequest{Name: &empty})
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, 1, backend.Hits(http.MethodPatch, "/servers/:id"))
}
