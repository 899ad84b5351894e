package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var std = newStdLogger()

func newStdLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// SetLogLevel 设置日志级别 (DEBUG, INFO, WARN, ERROR)，大小写不敏感
func SetLogLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		std.SetLevel(logrus.DebugLevel)
	case "info", "":
		std.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		std.SetLevel(logrus.WarnLevel)
	case "error":
		std.SetLevel(logrus.ErrorLevel)
	default:
		return fmt.Errorf("未知的日志级别: %s", level)
	}
	return nil
}

// GetLogLevel 返回当前日志级别
func GetLogLevel() string {
	return std.GetLevel().String()
}

// SetOutput 重定向日志输出（测试中使用）
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func Debug(args ...interface{}) { std.Debug(args...) }
func Info(args ...interface{})  { std.Info(args...) }
func Warn(args ...interface{})  { std.Warn(args...) }
func Error(args ...interface{}) { std.Error(args...) }

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// WithField 返回带字段的日志条目
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}
