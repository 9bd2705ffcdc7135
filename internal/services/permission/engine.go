package permission

import (
	"context"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
	"iris-osint/internal/platform/id"
)

// Store 是权限判定所需的最小存储能力。
type Store interface {
	GetInvestigation(ctx context.Context, investigationID string) (*model.Investigation, error)
	GetPermission(ctx context.Context, investigationID, actorID string) (*model.PermissionGrant, error)
	UpsertPermission(ctx context.Context, g model.PermissionGrant) error
	AppendAudit(ctx context.Context, investigationID, eventType, action, status, actor, source string, detail any) error
}

// Engine 实现调查级授权判定。
//
// 判定顺序固定：平台所有者 > 创建者 > 显式授权 > 拒绝。
// 前两条短路返回，不查授权表；级别比较基于 read < write < admin 全序。
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Check 判断操作者对调查是否持有 required 及以上级别。
// 调查不存在返回 NOT_FOUND；权限不足返回 (false, nil)，
// 由调用方决定包装成 403 还是静默跳过。
func (e *Engine) Check(ctx context.Context, actor model.Actor, investigationID string, required model.PermissionLevel) (bool, error) {
	if actor.Role == model.RoleOwner {
		return true, nil
	}

	inv, err := e.store.GetInvestigation(ctx, investigationID)
	if err != nil {
		return false, err
	}
	if inv == nil {
		return false, apperr.NotFound("investigation", investigationID)
	}
	if inv.CreatedBy == actor.ID {
		return true, nil
	}

	grant, err := e.store.GetPermission(ctx, investigationID, actor.ID)
	if err != nil {
		return false, err
	}
	if grant == nil {
		return false, nil
	}
	return grant.Level.Rank() >= required.Rank(), nil
}

// Require 与 Check 相同，但权限不足时直接返回 AUTHORIZATION_ERROR。
func (e *Engine) Require(ctx context.Context, actor model.Actor, investigationID string, required model.PermissionLevel) error {
	ok, err := e.Check(ctx, actor, investigationID, required)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Authorization("requires %s access to investigation %s", required, investigationID)
	}
	return nil
}

// Grant 由持有 admin 的操作者授予/覆盖他人权限。
// 同一 (investigation, actor) 重复授权直接覆盖级别，不保留历史。
func (e *Engine) Grant(ctx context.Context, granter model.Actor, investigationID, granteeID string, level model.PermissionLevel) (*model.PermissionGrant, error) {
	if !level.Valid() {
		return nil, apperr.Validation("invalid permission level: %s", level)
	}
	if granteeID == "" {
		return nil, apperr.Validation("grantee id is required")
	}

	if err := e.Require(ctx, granter, investigationID, model.LevelAdmin); err != nil {
		return nil, err
	}

	grant := model.PermissionGrant{
		ID:              id.New("perm"),
		InvestigationID: investigationID,
		ActorID:         granteeID,
		Level:           level,
		GrantedBy:       granter.ID,
		GrantedAt:       time.Now().Unix(),
	}
	if err := e.store.UpsertPermission(ctx, grant); err != nil {
		return nil, err
	}

	_ = e.store.AppendAudit(ctx, investigationID, "permission", "grant", "success", granter.ID, "permission-engine", map[string]string{
		"grantee": granteeID,
		"level":   string(level),
	})
	return &grant, nil
}
