package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NullTime 可空时间类型，兼容后端多种时间格式
type NullTime struct {
	Time  time.Time
	Valid bool // Valid表示Time不是NULL
}

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
}

// ParseTime 尝试多种时间格式
func ParseTime(v string) (time.Time, error) {
	for _, format := range timeFormats {
		if t, err := time.Parse(format, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间字符串: %s", v)
}

// NewNullTime 从时间构造有效值
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: !t.IsZero()}
}

// Ptr 返回指向时间的指针，如果无效则返回nil
func (nt *NullTime) Ptr() *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

// MarshalJSON 实现JSON序列化
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time)
}

// UnmarshalJSON 实现JSON反序列化
func (nt *NullTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	t, err := ParseTime(s)
	if err != nil {
		return err
	}
	nt.Time, nt.Valid = t, true
	return nil
}
