package model

// ReportFormat 表示报告产物格式。
type ReportFormat string

const (
	ReportPDF  ReportFormat = "pdf"
	ReportHTML ReportFormat = "html"
	ReportJSON ReportFormat = "json"
	// ReportBundle 司法导出 ZIP（报告 + 证据清单 + 哈希清单）。
	ReportBundle ReportFormat = "bundle"
)

// Valid 判断格式是否为可直接生成的报告格式（bundle 走导出流程，不在此列）。
func (f ReportFormat) Valid() bool {
	switch f {
	case ReportPDF, ReportHTML, ReportJSON:
		return true
	default:
		return false
	}
}

// CertificationLevel 表示报告认证级别。
type CertificationLevel string

const (
	CertBasic    CertificationLevel = "basic"
	CertAdvanced CertificationLevel = "advanced"
	CertForensic CertificationLevel = "forensic"
)

// Valid 判断认证级别是否为枚举内的合法值。
func (c CertificationLevel) Valid() bool {
	switch c {
	case CertBasic, CertAdvanced, CertForensic:
		return true
	default:
		return false
	}
}

// Report 表示一次报告生成的不可变快照（对应 reports 表）。
// 重新生成永远产生新行，不覆盖旧报告。
type Report struct {
	ID                 string             `json:"id"`
	InvestigationID    string             `json:"investigation_id"`
	Title              string             `json:"title"`
	Summary            string             `json:"summary,omitempty"`
	Format             ReportFormat       `json:"format"`
	CertificationLevel CertificationLevel `json:"certification_level"`
	BlobKey            string             `json:"blob_key"` // 产物在 blob sink 中的地址
	SHA256             string             `json:"sha256"`
	CertificationKey   string             `json:"certification_key"`
	GeneratedBy        string             `json:"generated_by"`
	GeneratedAt        int64              `json:"generated_at"`
}
