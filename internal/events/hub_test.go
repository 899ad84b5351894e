package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"PGWDash/internal/cache"
	"PGWDash/internal/models"
	"PGWDash/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, chan *sse.Event) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/api/events", hub.Handler())
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := sse.NewClient(ts.URL + "/api/events")
	events := make(chan *sse.Event, 16)
	go func() {
		_ = client.SubscribeChanRawWithContext(ctx, events)
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	return hub, events
}

func next(t *testing.T, events chan *sse.Event) Message {
	t.Helper()
	select {
	case ev := <-events:
		var msg Message
		require.NoError(t, json.Unmarshal(ev.Data, &msg))
		assert.Equal(t, msg.Type, string(ev.Event))
		assert.NotEmpty(t, ev.ID)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
		return Message{}
	}
}

func TestRedirectIsPushed(t *testing.T) {
	hub, events := startHub(t)

	hub.Redirect("/login")

	msg := next(t, events)
	assert.Equal(t, TypeAuth, msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/login", data["redirect"])
}

func TestAttachForwardsCacheAndWorkflowEvents(t *testing.T) {
	hub, events := startHub(t)

	c := cache.New()
	registry := workflow.NewRegistry(0)
	hub.Attach(c, registry)

	c.Invalidate(cache.KeyGroups)
	msg := next(t, events)
	assert.Equal(t, TypeCache, msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "invalidated", data["kind"])
	assert.Equal(t, "groups", data["key"])

	_, err := registry.Start(context.Background(), "group.create", func(context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	// in-flight 和 succeeded 两个快照
	first := next(t, events)
	second := next(t, events)
	assert.Equal(t, TypeWorkflow, first.Type)
	assert.Equal(t, "in-flight", first.Data.(map[string]interface{})["state"])
	assert.Equal(t, "succeeded", second.Data.(map[string]interface{})["state"])
}

func TestWorkflowPasswordsAreMasked(t *testing.T) {
	hub, events := startHub(t)

	registry := workflow.NewRegistry(0)
	hub.Attach(cache.New(), registry)

	_, err := registry.Start(context.Background(), "proxy.create", func(context.Context) (interface{}, error) {
		return &models.Proxy{ID: 7, Host: "10.0.0.1", Port: 1080, Username: "u", Password: "topsecret"}, nil
	})
	require.NoError(t, err)

	_ = next(t, events)
	select {
	case ev := <-events:
		assert.NotContains(t, string(ev.Data), "topsecret")
		var msg Message
		require.NoError(t, json.Unmarshal(ev.Data, &msg))
		result := msg.Data.(map[string]interface{})["result"].(map[string]interface{})
		assert.Equal(t, models.PasswordMask, result["password"])
		assert.Equal(t, "u", result["username"])
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
	}
}
