package model

// Role 表示操作者的平台角色。
// 角色来自认证层（HTTP 头/Token 解析结果），本核心只信任、不验证。
type Role string

const (
	// RoleOwner 平台所有者，对全部调查隐含 admin 权限。
	RoleOwner Role = "owner"
	// RoleInvestigator 普通调查员，权限由创建关系或显式授权决定。
	RoleInvestigator Role = "investigator"
)

// Actor 表示一次操作的身份上下文（操作者 ID + 角色）。
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// PermissionLevel 表示对单个调查的授权级别。
type PermissionLevel string

const (
	// LevelRead 只读：查看调查、证据、报告。
	LevelRead PermissionLevel = "read"
	// LevelWrite 读写：追加证据、变更状态、触发分析。
	LevelWrite PermissionLevel = "write"
	// LevelAdmin 管理：授权他人、删除调查/证据。
	LevelAdmin PermissionLevel = "admin"
)

// Rank 返回级别在全序 read(1) < write(2) < admin(3) 中的位置。
// 未知级别返回 0，永远比 read 低。
func (l PermissionLevel) Rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelAdmin:
		return 3
	default:
		return 0
	}
}

// Valid 判断级别是否为枚举内的合法值。
func (l PermissionLevel) Valid() bool {
	return l.Rank() > 0
}

// PermissionGrant 表示一条落库的授权记录（对应 permissions 表）。
// 每个 (investigation, actor) 至多一条有效记录，重复授权覆盖级别。
type PermissionGrant struct {
	ID              string          `json:"id"`
	InvestigationID string          `json:"investigation_id"`
	ActorID         string          `json:"actor_id"`
	Level           PermissionLevel `json:"level"`
	GrantedBy       string          `json:"granted_by"`
	GrantedAt       int64           `json:"granted_at"`
}
