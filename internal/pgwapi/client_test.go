package pgwapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, setup func(r *gin.Engine)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, token string) *Client {
	return New(Options{
		BaseURL:   srv.URL + "/api/v1/",
		Timeout:   2 * time.Second,
		Tokens:    TokenFunc(func() string { return token }),
		Transport: http.DefaultTransport,
	})
}

func TestSendAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := newBackend(t, func(r *gin.Engine) {
		r.GET("/api/v1/servers", func(c *gin.Context) {
			gotAuth = c.GetHeader("Authorization")
			c.JSON(http.StatusOK, []gin.H{{"id": 1, "name": "edge-1", "tags": `["a","b"]`}})
		})
	})

	servers, err := newClient(srv, "tok-123").ListServers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	require.Len(t, servers, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, []string(servers[0].Tags))
}

func TestSendWithoutToken(t *testing.T) {
	var gotAuth string
	srv := newBackend(t, func(r *gin.Engine) {
		r.POST("/api/v1/auth/login", func(c *gin.Context) {
			gotAuth = c.GetHeader("Authorization")
			c.JSON(http.StatusOK, gin.H{"access_token": "t", "expires_in": 3600})
		})
	})

	resp, err := newClient(srv, "").Login(context.Background(), LoginRequest{Email: "admin@x.com", Password: "secret"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "t", resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestSendErrors(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.POST("/api/v1/proxies", func(c *gin.Context) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid port"})
		})
		r.DELETE("/api/v1/proxies/:id", func(c *gin.Context) {
			c.Status(http.StatusInternalServerError)
		})
	})
	client := newClient(srv, "tok")

	tests := []struct {
		name       string
		call       func() error
		wantStatus int
		wantMsg    string
	}{
		{
			name: "后端返回错误信息",
			call: func() error {
				_, err := client.CreateProxy(context.Background(), CreateProxyRequest{Host: "h", Port: 1})
				return err
			},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid port",
		},
		{
			name:       "缺少错误字段时使用通用提示",
			call:       func() error { return client.DeleteProxy(context.Background(), 7) },
			wantStatus: http.StatusInternalServerError,
			wantMsg:    genericMessage(http.StatusInternalServerError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.False(t, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestUnauthorizedTriggersHandler(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {
		r.GET("/api/v1/groups", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		})
	})
	client := newClient(srv, "expired")

	var calls int32
	client.OnUnauthorized(func() { atomic.AddInt32(&calls, 1) })

	_, err := client.ListGroups(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTransportFailure(t *testing.T) {
	srv := newBackend(t, func(r *gin.Engine) {})
	client := newClient(srv, "")
	srv.Close()

	_, err := client.Summary(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Transport())
	assert.Equal(t, genericMessage(0), apiErr.Message)
}

func TestNoRetry(t *testing.T) {
	var hits int32
	srv := newBackend(t, func(r *gin.Engine) {
		r.GET("/api/v1/mappings", func(c *gin.Context) {
			atomic.AddInt32(&hits, 1)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy"})
		})
	})

	_, err := newClient(srv, "tok").ListMappings(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestBulkMoveResponse(t *testing.T) {
	var got BulkMoveRequest
	srv := newBackend(t, func(r *gin.Engine) {
		r.PUT("/api/v1/proxies/bulk-move", func(c *gin.Context) {
			assert.NoError(t, c.ShouldBindJSON(&got))
			c.JSON(http.StatusOK, gin.H{"message": "Proxies moved successfully", "moved_count": 2})
		})
	})

	gid := int64(4)
	resp, err := newClient(srv, "tok").BulkMoveProxies(context.Background(), BulkMoveRequest{ProxyIDs: []int64{1, 2, 3}, GroupID: &gid})
	require.NoError(t, err)
	require.NotNil(t, resp.MovedCount)
	assert.Equal(t, 2, *resp.MovedCount)
	assert.Equal(t, []int64{1, 2, 3}, got.ProxyIDs)
	require.NotNil(t, got.GroupID)
	assert.Equal(t, int64(4), *got.GroupID)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil, "x"))
	assert.Equal(t, "boom", Message(&APIError{Status: 400, Message: "boom"}, "x"))
	assert.Equal(t, "plain", Message(errors.New("plain"), "x"))
}
