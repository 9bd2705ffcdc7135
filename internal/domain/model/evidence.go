package model

// EvidenceType 表示证据类型。
type EvidenceType string

const (
	EvidenceScreenshot EvidenceType = "screenshot"
	EvidenceText       EvidenceType = "text"
	EvidenceFile       EvidenceType = "file"
	// EvidenceMetadata OSINT 分析结果回填证据统一使用该类型。
	EvidenceMetadata EvidenceType = "metadata"
	EvidenceURL      EvidenceType = "url"
	EvidenceImage    EvidenceType = "image"
	EvidenceDocument EvidenceType = "document"
)

// Valid 判断证据类型是否为枚举内的合法值。
func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceScreenshot, EvidenceText, EvidenceFile, EvidenceMetadata,
		EvidenceURL, EvidenceImage, EvidenceDocument:
		return true
	default:
		return false
	}
}

// Evidence 表示一条落库证据（对应 evidence 表）。
// 证据链是追加式的：已有记录永不编辑，只能由后续记录取代；
// 删除仅限 admin 级别操作者且不可逆。
type Evidence struct {
	ID              string       `json:"id"`
	InvestigationID string       `json:"investigation_id"` // 不可变外键
	Type            EvidenceType `json:"type"`
	Title           string       `json:"title"`
	Content         string       `json:"content,omitempty"` // 不透明载荷，大小不设上限
	SourceTool      string       `json:"source_tool,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
	ConfidenceScore int          `json:"confidence_score"` // 入库前收敛到 [0,100]
	Verified        bool         `json:"verified"`
	VerifiedBy      string       `json:"verified_by,omitempty"`
	VerifiedAt      int64        `json:"verified_at,omitempty"`
	CreatedBy       string       `json:"created_by"`
	CreatedAt       int64        `json:"created_at"`
	RecordHash      string       `json:"record_hash"` // 字段级留痕哈希
}
