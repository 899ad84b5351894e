package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"PGWDash/internal/auth"
	"PGWDash/internal/group"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/proxy"
	"PGWDash/internal/server"
	"PGWDash/internal/workflow"

	"github.com/gin-gonic/gin"
)

// statusFor 把领域错误映射为 HTTP 状态码。
// 本地校验失败（未发请求）一律 400，后端错误透传其状态码。
func statusFor(err error) int {
	var apiErr *pgwapi.APIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, workflow.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, pgwapi.ErrUnauthorized), errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, proxy.ErrNotConfirmed):
		return http.StatusPreconditionRequired
	case errors.Is(err, proxy.ErrPartialFailure):
		return http.StatusMultiStatus
	case errors.Is(err, group.ErrDefaultGroup), errors.Is(err, group.ErrRenameDefault),
		errors.Is(err, server.ErrSentinelServer):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		if apiErr.Status == 0 || apiErr.Status >= 500 {
			return http.StatusBadGateway
		}
		return apiErr.Status
	default:
		return http.StatusBadRequest
	}
}

// errorBody 错误响应，401 时附带登录页跳转
func errorBody(err error) gin.H {
	body := gin.H{
		"success": false,
		"error":   pgwapi.Message(err, "请求失败"),
	}
	if statusFor(err) == http.StatusUnauthorized {
		body["redirect"] = auth.LoginPath
	}
	return body
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorBody(err))
}

// writeWorkflow 变更操作的统一响应：始终带工作流快照
func writeWorkflow(c *gin.Context, wf *workflow.Workflow, err error) {
	writeWorkflowWith(c, wf, err, nil)
}

func writeWorkflowWith(c *gin.Context, wf *workflow.Workflow, err error, extra gin.H) {
	if err != nil && wf == nil {
		writeError(c, err)
		return
	}
	body := gin.H{"success": err == nil, "workflow": wf.Snapshot().Redacted()}
	if err != nil {
		for k, v := range errorBody(err) {
			body[k] = v
		}
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(statusFor(err), body)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "无效的ID"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "无效的请求数据"})
		return false
	}
	return true
}

// parseTarget 解析目标分组：字段缺失表示未选择，null 表示无分组
func parseTarget(raw json.RawMessage) (proxy.Target, error) {
	if len(raw) == 0 {
		return proxy.Target{}, nil
	}
	if string(raw) == "null" {
		return proxy.NoGroup(), nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return proxy.Target{}, errors.New("无效的分组ID")
	}
	return proxy.ToGroup(id), nil
}

// revealed ?reveal=1 时返回明文密码
func revealed(c *gin.Context) bool {
	v := c.Query("reveal")
	return v == "1" || v == "true"
}

// readFailed 读取出错且没有可展示的旧数据（或登录失效）时返回 true
func readFailed(err error, n int) bool {
	if err == nil {
		return false
	}
	return n == 0 || statusFor(err) == http.StatusUnauthorized
}

// withStale 有旧数据但刷新失败时附带提示
func withStale(body gin.H, err error) gin.H {
	if err != nil {
		body["stale"] = true
		body["error"] = pgwapi.Message(err, "刷新失败")
	}
	return body
}
