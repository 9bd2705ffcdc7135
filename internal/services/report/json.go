package report

import (
	"encoding/json"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/hash"
)

const platformVersion = "1.0.0"

type jsonMetadata struct {
	GeneratedAt        string                   `json:"generated_at"`
	GeneratedBy        string                   `json:"generated_by"`
	Platform           string                   `json:"platform"`
	Version            string                   `json:"version"`
	CertificationLevel model.CertificationLevel `json:"certification_level"`
	Format             string                   `json:"format"`
}

type jsonCertification struct {
	Key       string `json:"key"`
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
}

type jsonReport struct {
	ReportMetadata *jsonMetadata       `json:"report_metadata,omitempty"`
	Investigation  model.Investigation `json:"investigation"`
	Evidence       []model.Evidence    `json:"evidence"`
	Runs           []model.AnalysisRun `json:"analysis_results"`
	Audits         []model.AuditLog    `json:"audit_trail"`
	Certification  jsonCertification   `json:"certification"`
}

// renderJSON 生成 JSON 报告。
// 认证键与哈希基于快照内容计算，重新生成同一调查必然得到新键。
func renderJSON(snap *Snapshot, level model.CertificationLevel, generatedBy string, at time.Time, includeMetadata bool) ([]byte, error) {
	snapRaw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	snapSum := hash.Bytes(snapRaw)

	out := jsonReport{
		Investigation: snap.Investigation,
		Evidence:      snap.Evidence,
		Runs:          snap.Runs,
		Audits:        snap.Audits,
		Certification: jsonCertification{
			Key:       CertificationKey(level, at.UnixMilli(), snapSum),
			Hash:      snapSum,
			Signature: certSignature(),
		},
	}
	if includeMetadata {
		out.ReportMetadata = &jsonMetadata{
			GeneratedAt:        at.Format(time.RFC3339),
			GeneratedBy:        generatedBy,
			Platform:           "Iris OSINT",
			Version:            platformVersion,
			CertificationLevel: level,
			Format:             "json",
		}
	}
	return json.MarshalIndent(out, "", "  ")
}
