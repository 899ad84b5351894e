package proxy

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"PGWDash/internal/models"
)

// ParseError 无法解析的导入行，Line 从 1 开始
type ParseError struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("第 %d 行: %s", e.Line, e.Reason)
}

// ParseImportText 解析批量导入文本，每行一个代理，支持：
//
//	host:port
//	host:port:username:password
//	type://[username:password@]host:port
//
// 空行和 # 开头的行被忽略。端口范围在导入时校验。
func ParseImportText(text string) ([]ImportDescriptor, []ParseError) {
	var (
		items []ImportDescriptor
		bad   []ParseError
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		item, err := parseLine(line)
		if err != nil {
			bad = append(bad, ParseError{Line: lineNo, Text: line, Reason: err.Error()})
			continue
		}
		items = append(items, item)
	}
	return items, bad
}

func parseLine(line string) (ImportDescriptor, error) {
	if strings.Contains(line, "://") {
		return parseURLLine(line)
	}

	// [ipv6]:port[:user:pass]
	if strings.HasPrefix(line, "[") {
		end := strings.Index(line, "]")
		if end < 0 {
			return ImportDescriptor{}, fmt.Errorf("缺少 ]")
		}
		host := line[1:end]
		rest := strings.TrimPrefix(line[end+1:], ":")
		parts := strings.Split(rest, ":")
		return fromParts(host, parts)
	}

	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return ImportDescriptor{}, fmt.Errorf("格式应为 host:port 或 host:port:user:pass")
	}
	return fromParts(parts[0], parts[1:])
}

// fromParts parts 为 port[, user, pass]
func fromParts(host string, parts []string) (ImportDescriptor, error) {
	if host == "" {
		return ImportDescriptor{}, fmt.Errorf("主机地址为空")
	}
	if len(parts) != 1 && len(parts) != 3 {
		return ImportDescriptor{}, fmt.Errorf("格式应为 host:port 或 host:port:user:pass")
	}
	port, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ImportDescriptor{}, fmt.Errorf("无效的端口: %s", parts[0])
	}
	item := ImportDescriptor{Host: host, Port: port}
	if len(parts) == 3 {
		item.Username, item.Password = parts[1], parts[2]
	}
	return item, nil
}

func parseURLLine(line string) (ImportDescriptor, error) {
	u, err := url.Parse(line)
	if err != nil {
		return ImportDescriptor{}, fmt.Errorf("无法解析地址: %v", err)
	}
	proxyType := models.ProxyType(strings.ToLower(u.Scheme))
	if !proxyType.Valid() {
		return ImportDescriptor{}, fmt.Errorf("不支持的代理类型: %s", u.Scheme)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return ImportDescriptor{}, fmt.Errorf("缺少端口: %s", u.Host)
	}
	if host == "" {
		return ImportDescriptor{}, fmt.Errorf("主机地址为空")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ImportDescriptor{}, fmt.Errorf("无效的端口: %s", portStr)
	}
	item := ImportDescriptor{Host: host, Port: port, Type: proxyType}
	if u.User != nil {
		item.Username = u.User.Username()
		item.Password, _ = u.User.Password()
	}
	return item, nil
}
