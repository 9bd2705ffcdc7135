package analyzer

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
)

var ipInURLPattern = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// AnalyzeURL 拆解 URL 结构并标记可疑特征。
func AnalyzeURL(target string) []model.ToolResult {
	start := time.Now()
	target = strings.TrimSpace(target)

	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return []model.ToolResult{failResult("URL Analysis", "invalid url", start)}
	}

	params := map[string]string{}
	for key, values := range parsed.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	return []model.ToolResult{
		okResult("URL Analysis", map[string]any{
			"url":                 target,
			"domain":              parsed.Hostname(),
			"protocol":            parsed.Scheme,
			"path":                parsed.Path,
			"params":              params,
			"suspicious_elements": suspiciousElements(target),
		}, 85, start),
	}
}

func suspiciousElements(target string) []string {
	out := []string{}
	if strings.Contains(target, "bit.ly") {
		out = append(out, "URL shortened")
	}
	if strings.Contains(target, "login") {
		out = append(out, "Login page")
	}
	if len(target) > 100 {
		out = append(out, "Overly long URL")
	}
	if ipInURLPattern.MatchString(target) {
		out = append(out, "IP address instead of domain")
	}
	return out
}
