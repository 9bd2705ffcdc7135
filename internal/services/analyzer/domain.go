package analyzer

import (
	"strings"
	"time"

	"iris-osint/internal/domain/model"
)

// AnalyzeDomain 查询域名注册信息。
func AnalyzeDomain(target string) []model.ToolResult {
	start := time.Now()
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" || !strings.Contains(target, ".") {
		return []model.ToolResult{failResult("Domain Whois", "invalid domain", start)}
	}

	return []model.ToolResult{
		okResult("Domain Whois", domainInfo(target), 95, start),
	}
}
