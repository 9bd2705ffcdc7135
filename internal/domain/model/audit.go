package model

import "encoding/json"

// AuditLog 表示一条审计日志（对应 audit_logs 表）。
// chain_hash 由上一条记录的 chain_hash 链式计算，用于事后校验完整性。
type AuditLog struct {
	EventID         string          `json:"event_id"`
	InvestigationID string          `json:"investigation_id"`
	EventType       string          `json:"event_type"`
	Action          string          `json:"action"`
	Status          string          `json:"status"`
	Actor           string          `json:"actor"`
	Source          string          `json:"source,omitempty"`
	DetailJSON      json.RawMessage `json:"detail_json,omitempty"`
	OccurredAt      int64           `json:"occurred_at"`
	ChainPrevHash   string          `json:"chain_prev_hash,omitempty"`
	ChainHash       string          `json:"chain_hash"`
}
