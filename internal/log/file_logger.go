package log

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// OperationLogger 操作日志管理器，按 工作流类型/日期 落盘
type OperationLogger struct {
	baseDir   string              // 日志根目录
	fileCache map[string]*os.File // 文件句柄缓存
	mu        sync.RWMutex        // 保护文件缓存的锁

	retentionDays int           // 日志保留天数
	flushInterval time.Duration // 自动刷新间隔

	done      chan struct{}
	closeOnce sync.Once
}

// LogEntry 日志条目
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// NewOperationLogger 创建操作日志管理器
func NewOperationLogger(baseDir string, retentionDays int) *OperationLogger {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	ol := &OperationLogger{
		baseDir:       baseDir,
		fileCache:     make(map[string]*os.File),
		retentionDays: retentionDays,
		flushInterval: 5 * time.Second,
		done:          make(chan struct{}),
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		Errorf("创建日志目录失败: %v", err)
	}

	go ol.startPeriodicTasks()

	return ol
}

// WriteLog 写入一行操作日志
func (ol *OperationLogger) WriteLog(kind, content string) error {
	if content == "" {
		return nil
	}

	now := time.Now()
	filePath := ol.pathFor(kind, now)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	file, err := ol.getOrCreateFile(filePath)
	if err != nil {
		return fmt.Errorf("获取日志文件失败: %w", err)
	}

	line := fmt.Sprintf("[%s] %s\n", now.Format("2006-01-02 15:04:05"), strings.ReplaceAll(content, "\n", " "))

	ol.mu.Lock()
	_, err = file.WriteString(line)
	ol.mu.Unlock()
	if err != nil {
		return fmt.Errorf("写入日志失败: %w", err)
	}
	return nil
}

func (ol *OperationLogger) pathFor(kind string, date time.Time) string {
	return filepath.Join(ol.baseDir, sanitizeKind(kind), date.Format("2006-01-02")+".log")
}

// sanitizeKind 防止类型名中出现路径分隔符
func sanitizeKind(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "misc"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(kind)
}

// getOrCreateFile 获取或创建文件句柄
func (ol *OperationLogger) getOrCreateFile(filePath string) (*os.File, error) {
	ol.mu.RLock()
	file, exists := ol.fileCache[filePath]
	ol.mu.RUnlock()
	if exists {
		return file, nil
	}

	ol.mu.Lock()
	defer ol.mu.Unlock()

	// 双重检查
	if file, exists := ol.fileCache[filePath]; exists {
		return file, nil
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	ol.fileCache[filePath] = file
	return file, nil
}

// ReadRecentLogs 读取最近几天某类型的日志，按时间倒序
func (ol *OperationLogger) ReadRecentLogs(kind string, days, limit int) ([]LogEntry, error) {
	var all []LogEntry
	for i := 0; i < days; i++ {
		entries, err := ol.readLogsByDate(kind, time.Now().AddDate(0, 0, -i))
		if err != nil {
			continue // 忽略单个文件的错误
		}
		all = append(all, entries...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// readLogsByDate 读取指定日期的日志
func (ol *OperationLogger) readLogsByDate(kind string, date time.Time) ([]LogEntry, error) {
	filePath := ol.pathFor(kind, date)
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 22 && line[0] == '[' {
			if ts, err := time.ParseInLocation("2006-01-02 15:04:05", line[1:20], time.Local); err == nil {
				entries = append(entries, LogEntry{Timestamp: ts, Content: line[22:]})
				continue
			}
		}
		if line != "" {
			entries = append(entries, LogEntry{Timestamp: date, Content: line})
		}
	}
	return entries, scanner.Err()
}

// startPeriodicTasks 启动定期刷新与清理
func (ol *OperationLogger) startPeriodicTasks() {
	flushTicker := time.NewTicker(ol.flushInterval)
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer flushTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ol.done:
			return
		case <-flushTicker.C:
			ol.flushAll()
		case <-cleanupTicker.C:
			ol.cleanupOldLogs()
		}
	}
}

func (ol *OperationLogger) flushAll() {
	ol.mu.RLock()
	defer ol.mu.RUnlock()
	for _, file := range ol.fileCache {
		if file != nil {
			file.Sync()
		}
	}
}

// cleanupOldLogs 清理过期日志文件
func (ol *OperationLogger) cleanupOldLogs() {
	cutoff := time.Now().AddDate(0, 0, -ol.retentionDays)
	deleted := 0

	err := filepath.Walk(ol.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".log" {
			return nil
		}
		dateStr := strings.TrimSuffix(filepath.Base(path), ".log")
		fileDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil || !fileDate.Before(cutoff) {
			return nil
		}
		ol.closeFile(path)
		if err := os.Remove(path); err != nil {
			Warnf("删除日志文件失败: %s, err: %v", path, err)
			return nil
		}
		deleted++
		return nil
	})

	if err != nil {
		Errorf("清理日志文件时发生错误: %v", err)
	} else if deleted > 0 {
		Infof("清理完成，删除了 %d 个过期日志文件", deleted)
	}
}

func (ol *OperationLogger) closeFile(filePath string) {
	ol.mu.Lock()
	defer ol.mu.Unlock()
	if file, ok := ol.fileCache[filePath]; ok {
		file.Close()
		delete(ol.fileCache, filePath)
	}
}

// TriggerCleanup 手动触发清理
func (ol *OperationLogger) TriggerCleanup() {
	ol.cleanupOldLogs()
}

// Close 关闭所有文件句柄并停止后台任务
func (ol *OperationLogger) Close() {
	ol.closeOnce.Do(func() { close(ol.done) })

	ol.mu.Lock()
	defer ol.mu.Unlock()
	for path, file := range ol.fileCache {
		if file != nil {
			file.Close()
		}
		delete(ol.fileCache, path)
	}
}
