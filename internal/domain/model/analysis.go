package model

// TargetType 表示 OSINT 分析的目标类型，也是分析器注册表的键。
type TargetType string

const (
	TargetDiscord  TargetType = "discord"
	TargetEmail    TargetType = "email"
	TargetIP       TargetType = "ip"
	TargetUsername TargetType = "username"
	TargetDomain   TargetType = "domain"
	TargetURL      TargetType = "url"
	TargetPhone    TargetType = "phone"
)

// RunStatus 表示分析运行状态。
// 状态机只允许 running -> completed / running -> failed，且只流转一次。
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ToolResult 表示一次具名工具查询的结果。
// 工具自身的失败（输入非法、查询异常）表现为 Success=false + Error，
// 不允许以 panic 的形式逃逸，避免污染同一次运行内的其他工具。
type ToolResult struct {
	Tool            string         `json:"tool"`
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	Confidence      int            `json:"confidence"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Timestamp       int64          `json:"timestamp"`
}

// AnalysisRun 表示一次分析运行（对应 analysis_runs 表）。
// 进入 completed / failed 后不可变。
type AnalysisRun struct {
	ID              string       `json:"id"`
	InvestigationID string       `json:"investigation_id,omitempty"` // 可为空：游离分析
	Target          string       `json:"target"`
	TargetType      TargetType   `json:"target_type"`
	RequestedTools  string       `json:"requested_tools,omitempty"` // 逗号拼接的请求工具集
	Status          RunStatus    `json:"status"`
	Results         []ToolResult `json:"results,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedBy       string       `json:"created_by"`
	StartedAt       int64        `json:"started_at"`
	CompletedAt     int64        `json:"completed_at,omitempty"`
	ExecutionTimeMs int64        `json:"execution_time_ms,omitempty"`
}
