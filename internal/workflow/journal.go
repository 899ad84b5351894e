package workflow

import (
	"fmt"

	log "PGWDash/internal/log"
)

// JournalListener 把结束的工作流写入操作日志，按工作流类型分目录
func JournalListener(ol *log.OperationLogger) Listener {
	return func(s Snapshot) {
		if s.State != StateSucceeded && s.State != StateFailed {
			return
		}
		line := fmt.Sprintf("%s %s", s.ID, s.State)
		if s.Error != "" {
			line += ": " + s.Error
		}
		if err := ol.WriteLog(s.Kind, line); err != nil {
			log.Warnf("[Workflow] 写入操作日志失败: %v", err)
		}
	}
}
