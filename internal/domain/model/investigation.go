package model

// InvestigationStatus 表示调查状态。
type InvestigationStatus string

const (
	// StatusPending 已建案、未开始。
	StatusPending InvestigationStatus = "pending"
	// StatusActive 调查进行中。
	StatusActive InvestigationStatus = "active"
	// StatusCompleted 调查已完成。
	StatusCompleted InvestigationStatus = "completed"
	// StatusSuspended 调查暂停。
	StatusSuspended InvestigationStatus = "suspended"
	// StatusCancelled 调查取消。
	StatusCancelled InvestigationStatus = "cancelled"
)

// Valid 判断状态是否为枚举内的合法值。
func (s InvestigationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusSuspended, StatusCancelled:
		return true
	default:
		return false
	}
}

// Priority 表示调查优先级。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid 判断优先级是否为枚举内的合法值。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Investigation 表示一次调查（对应 investigations 表）。
// 只通过状态流转操作修改；删除仅限 admin 级别操作者，
// 且会级联清理其证据、授权、分析与报告。
type Investigation struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	TargetType  string              `json:"target_type"`
	TargetValue string              `json:"target_value"`
	Status      InvestigationStatus `json:"status"`
	Priority    Priority            `json:"priority"`
	CreatedBy   string              `json:"created_by"`
	StartedAt   int64               `json:"started_at,omitempty"`
	CompletedAt int64               `json:"completed_at,omitempty"`
	CreatedAt   int64               `json:"created_at"`
	UpdatedAt   int64               `json:"updated_at"`
}
