package report

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"

	"iris-osint/internal/domain/model"
)

// CertificationKey 从报告内容哈希派生认证键：
// IRIS-<级别前三位大写>-<生成时刻毫秒的 36 进制>-<内容 sha256 前 12 位大写>。
// 键本身可公开，校验时重算内容哈希比对末段即可。
func CertificationKey(level model.CertificationLevel, atMillis int64, contentSHA256 string) string {
	lvl := strings.ToUpper(string(level))
	if len(lvl) > 3 {
		lvl = lvl[:3]
	}
	sum := contentSHA256
	if len(sum) > 12 {
		sum = sum[:12]
	}
	return "IRIS-" + lvl + "-" + strconv.FormatInt(atMillis, 36) + "-" + strings.ToUpper(sum)
}

func upperLevel(l model.CertificationLevel) string {
	return strings.ToUpper(string(l))
}

// certSignature 生成报告签名占位（随机 16 字节）。
// 真实签章（PKI/时间戳）是后续司法级增强的事。
func certSignature() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "IRIS-" + strings.ToUpper(hex.EncodeToString(buf))
}
