package proxy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "PGWDash/internal/log"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/workflow"

	"golang.org/x/sync/errgroup"
)

// BulkMove 一次请求把多个代理移动到目标分组。
// 移动数量以后端返回为准，后端未返回时使用请求数量。
func (s *Service) BulkMove(ctx context.Context, ids []int64, target Target) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "proxy.bulk_move", func(ctx context.Context) (interface{}, error) {
		ids = uniqueIDs(ids)
		if len(ids) == 0 {
			return nil, ErrEmptySelection
		}
		if !target.Chosen() {
			return nil, ErrNoTarget
		}

		resp, err := s.client.BulkMoveProxies(ctx, pgwapi.BulkMoveRequest{ProxyIDs: ids, GroupID: target.GroupID()})
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)

		result := &BulkMoveResult{Requested: len(ids), Moved: len(ids), GroupID: target.GroupID(), Message: resp.Message}
		if resp.MovedCount != nil {
			result.Moved = *resp.MovedCount
		}
		log.Infof("[Proxy] 批量移动完成: 请求 %d 个，移动 %d 个", result.Requested, result.Moved)
		return result, nil
	})
}

// BulkDelete 逐个删除选中的代理，每一项单独记录结果。
// 删除前必须经过确认；成功删除的ID会从选择集中移除。
// 任一项失败时返回 ErrPartialFailure，结果中保留成功与失败明细。
func (s *Service) BulkDelete(ctx context.Context, sel *Selection, confirmer Confirmer) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "proxy.bulk_delete", func(ctx context.Context) (interface{}, error) {
		ids := sel.IDs()
		if len(ids) == 0 {
			return nil, ErrEmptySelection
		}
		if confirmer == nil || !confirmer.Confirm(DeletePrompt(len(ids))) {
			return nil, ErrNotConfirmed
		}

		errs := make([]error, len(ids))
		var g errgroup.Group
		g.SetLimit(s.bulkConcurrency)
		for i, id := range ids {
			i, id := i, id
			g.Go(func() error {
				errs[i] = s.client.DeleteProxy(ctx, id)
				return nil
			})
		}
		_ = g.Wait()

		result := &BulkResult{Requested: len(ids), Succeeded: []int64{}, Failed: []ItemFailure{}}
		var authErr error
		for i, id := range ids {
			if errs[i] == nil {
				result.Succeeded = append(result.Succeeded, id)
				continue
			}
			if errors.Is(errs[i], pgwapi.ErrUnauthorized) && authErr == nil {
				authErr = errs[i]
			}
			result.Failed = append(result.Failed, ItemFailure{ID: id, Reason: pgwapi.Message(errs[i], "删除失败")})
		}

		if len(result.Succeeded) > 0 {
			s.cache.Invalidate(countKeys...)
			sel.Remove(result.Succeeded...)
		}
		log.Infof("[Proxy] 批量删除完成: 成功 %d 个，失败 %d 个", result.SucceededCount(), result.FailedCount())

		if authErr != nil {
			return result, authErr
		}
		if len(result.Failed) > 0 {
			return result, fmt.Errorf("%w: %d 个代理删除失败，%d 个成功", ErrPartialFailure, result.FailedCount(), result.SucceededCount())
		}
		return result, nil
	})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
