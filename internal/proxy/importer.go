package proxy

import (
	"context"
	"errors"
	"fmt"

	log "PGWDash/internal/log"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/workflow"

	"golang.org/x/sync/errgroup"
)

// ImportDescriptor 导入的单个代理描述，可选字段为空时使用默认值
type ImportDescriptor struct {
	Host     string              `json:"host"`
	Port     int                 `json:"port"`
	Username string              `json:"username"`
	Password string              `json:"password"`
	Type     models.ProxyType    `json:"type"`
	Label    string              `json:"label"`
	Health   models.HealthStatus `json:"health"`
}

// ImportedItem 导入成功的一项，Index 从 1 开始
type ImportedItem struct {
	Index int    `json:"index"`
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// ImportFailure 导入失败的一项，Index 从 1 开始
type ImportFailure struct {
	Index  int    `json:"index"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Reason string `json:"reason"`
}

// ImportResult 导入的逐项结果
type ImportResult struct {
	Total   int             `json:"total"`
	Created []ImportedItem  `json:"created"`
	Failed  []ImportFailure `json:"failed"`
}

// CreatedCount 实际创建的数量
func (r *ImportResult) CreatedCount() int { return len(r.Created) }

// Import 批量导入代理。每一项独立创建、不分配服务器（进入“未分配”），
// 客户端校验失败的项不发请求，其余项并发创建。
func (s *Service) Import(ctx context.Context, items []ImportDescriptor) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "proxy.import", func(ctx context.Context) (interface{}, error) {
		if len(items) == 0 {
			return nil, ErrNothingToImport
		}

		created := make([]*models.Proxy, len(items))
		errs := make([]error, len(items))

		var g errgroup.Group
		g.SetLimit(s.bulkConcurrency)
		for i, item := range items {
			req := CreateProxyRequest{
				Label:    item.Label,
				Type:     item.Type,
				Host:     item.Host,
				Port:     item.Port,
				Username: item.Username,
				Password: item.Password,
				Health:   item.Health,
			}
			req.applyDefaults()
			if err := req.validate(); err != nil {
				errs[i] = err
				continue
			}

			i := i
			g.Go(func() error {
				created[i], errs[i] = s.client.CreateProxy(ctx, toAPICreate(req))
				return nil
			})
		}
		_ = g.Wait()

		result := &ImportResult{Total: len(items), Created: []ImportedItem{}, Failed: []ImportFailure{}}
		var authErr error
		for i, item := range items {
			if errs[i] == nil && created[i] != nil {
				result.Created = append(result.Created, ImportedItem{Index: i + 1, ID: created[i].ID, Label: created[i].Label})
				continue
			}
			if errors.Is(errs[i], pgwapi.ErrUnauthorized) && authErr == nil {
				authErr = errs[i]
			}
			result.Failed = append(result.Failed, ImportFailure{
				Index:  i + 1,
				Host:   item.Host,
				Port:   item.Port,
				Reason: pgwapi.Message(errs[i], "创建失败"),
			})
		}

		if len(result.Created) > 0 {
			s.cache.Invalidate(countKeys...)
		}
		log.Infof("[Proxy] 导入完成: 共 %d 个，成功 %d 个，失败 %d 个", result.Total, len(result.Created), len(result.Failed))

		if authErr != nil {
			return result, authErr
		}
		if len(result.Failed) > 0 {
			return result, fmt.Errorf("%w: %d 个代理导入失败，%d 个成功", ErrPartialFailure, len(result.Failed), len(result.Created))
		}
		return result, nil
	})
}

