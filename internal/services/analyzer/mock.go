package analyzer

import (
	"fmt"
	"math/rand"
	"time"

	"iris-osint/internal/domain/model"
)

// 本文件是模拟工具的共用素材。
// 置信度是每个工具的固有属性（数据源可信度），不随目标变化。

func okResult(tool string, data map[string]any, confidence int, startedAt time.Time) model.ToolResult {
	return model.ToolResult{
		Tool:            tool,
		Success:         true,
		Data:            data,
		Confidence:      confidence,
		ExecutionTimeMs: time.Since(startedAt).Milliseconds(),
		Timestamp:       time.Now().Unix(),
	}
}

func failResult(tool, message string, startedAt time.Time) model.ToolResult {
	return model.ToolResult{
		Tool:            tool,
		Success:         false,
		Error:           message,
		ExecutionTimeMs: time.Since(startedAt).Milliseconds(),
		Timestamp:       time.Now().Unix(),
	}
}

// randomPastDate 返回过去 maxDaysAgo 天内的随机日期（RFC3339）。
func randomPastDate(maxDaysAgo int) string {
	if maxDaysAgo <= 0 {
		maxDaysAgo = 365
	}
	d := time.Now().AddDate(0, 0, -rand.Intn(maxDaysAgo))
	return d.Format(time.RFC3339)
}

// randomFutureDate 返回未来 maxDaysAhead 天内的随机日期（RFC3339）。
func randomFutureDate(maxDaysAhead int) string {
	if maxDaysAhead <= 0 {
		maxDaysAhead = 365
	}
	d := time.Now().AddDate(0, 0, rand.Intn(maxDaysAhead))
	return d.Format(time.RFC3339)
}

// mockNumericID 生成 18 位数字 ID（Discord snowflake 风格）。
func mockNumericID() string {
	return fmt.Sprintf("%d", 100000000000000000+rand.Int63n(900000000000000000))
}

func pick(options ...string) string {
	return options[rand.Intn(len(options))]
}

// domainInfo 构造域名注册信息，email 与 domain 分析器共用。
func domainInfo(domain string) map[string]any {
	return map[string]any{
		"domain":             domain,
		"registrar":          "OVH",
		"creation_date":      randomPastDate(3650),
		"expiry_date":        randomFutureDate(365),
		"nameservers":        []string{"ns1." + domain, "ns2." + domain},
		"status":             "Active",
		"privacy_protection": rand.Intn(2) == 1,
		"mx_records":         []string{"mx1." + domain, "mx2." + domain},
	}
}
