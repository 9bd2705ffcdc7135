// Package investigation 实现调查生命周期与证据链的核心业务。
//
// 所有带权限要求的操作先走授权判定，再落库，最后追加审计事件。
// 审计失败只记日志、不回滚业务写入。
package investigation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
	"iris-osint/internal/platform/id"
	"iris-osint/internal/services/permission"
)

// Store 是调查服务所需的存储能力。
type Store interface {
	CreateInvestigation(ctx context.Context, inv model.Investigation) error
	GetInvestigation(ctx context.Context, investigationID string) (*model.Investigation, error)
	ListInvestigationsForActor(ctx context.Context, actorID string) ([]model.Investigation, error)
	ListAllInvestigations(ctx context.Context) ([]model.Investigation, error)
	UpdateInvestigationStatus(ctx context.Context, investigationID string, status model.InvestigationStatus) (bool, error)
	DeleteInvestigation(ctx context.Context, investigationID string) (bool, error)

	InsertEvidence(ctx context.Context, ev model.Evidence) error
	ListEvidence(ctx context.Context, investigationID string) ([]model.Evidence, error)
	GetEvidenceByID(ctx context.Context, evidenceID string) (*model.Evidence, error)
	MarkEvidenceVerified(ctx context.Context, investigationID, evidenceID, verifiedBy string, verifiedAt int64) (bool, error)
	DeleteEvidence(ctx context.Context, investigationID, evidenceID string) (bool, error)

	ListAuditLogs(ctx context.Context, investigationID string, limit int) ([]model.AuditLog, error)
	AppendAudit(ctx context.Context, investigationID, eventType, action, status, actor, source string, detail any) error
}

type Service struct {
	store Store
	perms *permission.Engine
	log   *slog.Logger
}

func NewService(store Store, perms *permission.Engine, log *slog.Logger) *Service {
	return &Service{store: store, perms: perms, log: log}
}

// CreateRequest 是建案参数。
type CreateRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	TargetType  string         `json:"target_type"`
	TargetValue string         `json:"target_value"`
	Priority    model.Priority `json:"priority"`
}

// Create 建案。初始状态固定为 pending，优先级缺省 medium。
// 创建者隐含 admin 权限，不写授权行。
func (s *Service) Create(ctx context.Context, actor model.Actor, req CreateRequest) (*model.Investigation, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.TargetType = strings.TrimSpace(req.TargetType)
	req.TargetValue = strings.TrimSpace(req.TargetValue)
	if req.Name == "" {
		return nil, apperr.Validation("investigation name is required")
	}
	if req.TargetType == "" || req.TargetValue == "" {
		return nil, apperr.Validation("target_type and target_value are required")
	}
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, apperr.Validation("invalid priority: %s", req.Priority)
	}

	now := time.Now().Unix()
	inv := model.Investigation{
		ID:          id.New("inv"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		TargetType:  req.TargetType,
		TargetValue: req.TargetValue,
		Status:      model.StatusPending,
		Priority:    req.Priority,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateInvestigation(ctx, inv); err != nil {
		return nil, apperr.Persistence(err, "create investigation")
	}

	s.audit(ctx, inv.ID, "investigation", "create", actor.ID, map[string]string{
		"name":     inv.Name,
		"priority": string(inv.Priority),
	})
	s.log.Info("investigation created",
		"investigation_id", inv.ID,
		"actor", actor.ID,
		"target_type", inv.TargetType)
	return &inv, nil
}

// List 返回操作者可见的调查。平台所有者看到全量。
func (s *Service) List(ctx context.Context, actor model.Actor) ([]model.Investigation, error) {
	if actor.Role == model.RoleOwner {
		return s.store.ListAllInvestigations(ctx)
	}
	return s.store.ListInvestigationsForActor(ctx, actor.ID)
}

// Get 按 ID 读取调查（需 read 权限）。
func (s *Service) Get(ctx context.Context, actor model.Actor, investigationID string) (*model.Investigation, error) {
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelRead); err != nil {
		return nil, err
	}
	inv, err := s.store.GetInvestigation(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.NotFound("investigation", investigationID)
	}
	return inv, nil
}

// UpdateStatus 流转调查状态（需 write 权限）。
// active 记录开始时间，completed 记录完成时间。
func (s *Service) UpdateStatus(ctx context.Context, actor model.Actor, investigationID string, status model.InvestigationStatus) (*model.Investigation, error) {
	if !status.Valid() {
		return nil, apperr.Validation("invalid status: %s", status)
	}
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelWrite); err != nil {
		return nil, err
	}

	ok, err := s.store.UpdateInvestigationStatus(ctx, investigationID, status)
	if err != nil {
		return nil, apperr.Persistence(err, "update status")
	}
	if !ok {
		return nil, apperr.NotFound("investigation", investigationID)
	}

	s.audit(ctx, investigationID, "investigation", "status_change", actor.ID, map[string]string{
		"status": string(status),
	})
	return s.store.GetInvestigation(ctx, investigationID)
}

// Delete 删除调查（需 admin 权限），级联清理证据/授权/分析/报告/审计。
func (s *Service) Delete(ctx context.Context, actor model.Actor, investigationID string) error {
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelAdmin); err != nil {
		return err
	}

	ok, err := s.store.DeleteInvestigation(ctx, investigationID)
	if err != nil {
		return apperr.Persistence(err, "delete investigation")
	}
	if !ok {
		return apperr.NotFound("investigation", investigationID)
	}
	s.log.Info("investigation deleted", "investigation_id", investigationID, "actor", actor.ID)
	return nil
}

// AddEvidenceRequest 是证据追加参数。
type AddEvidenceRequest struct {
	Type            model.EvidenceType `json:"type"`
	Title           string             `json:"title"`
	Content         string             `json:"content"`
	SourceTool      string             `json:"source_tool"`
	SourceURL       string             `json:"source_url"`
	ConfidenceScore int                `json:"confidence_score"`
}

// AddEvidence 向调查追加证据（需 write 权限）。
// 置信度收敛到 [0,100]，入库时生成字段级留痕哈希。
func (s *Service) AddEvidence(ctx context.Context, actor model.Actor, investigationID string, req AddEvidenceRequest) (*model.Evidence, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, apperr.Validation("evidence title is required")
	}
	if !req.Type.Valid() {
		return nil, apperr.Validation("invalid evidence type: %s", req.Type)
	}
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelWrite); err != nil {
		return nil, err
	}

	score := req.ConfidenceScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	ev := model.Evidence{
		ID:              id.New("ev"),
		InvestigationID: investigationID,
		Type:            req.Type,
		Title:           req.Title,
		Content:         req.Content,
		SourceTool:      strings.TrimSpace(req.SourceTool),
		SourceURL:       strings.TrimSpace(req.SourceURL),
		ConfidenceScore: score,
		CreatedBy:       actor.ID,
		CreatedAt:       time.Now().Unix(),
	}
	if err := s.store.InsertEvidence(ctx, ev); err != nil {
		return nil, apperr.Persistence(err, "insert evidence")
	}

	s.audit(ctx, investigationID, "evidence", "add", actor.ID, map[string]any{
		"evidence_id": ev.ID,
		"type":        string(ev.Type),
		"source_tool": ev.SourceTool,
	})

	// 返回落库后的完整记录（带 record_hash）。
	stored, err := s.store.GetEvidenceByID(ctx, ev.ID)
	if err != nil || stored == nil {
		return &ev, nil
	}
	return stored, nil
}

// ListEvidence 返回调查证据（需 read 权限），最新在前。
func (s *Service) ListEvidence(ctx context.Context, actor model.Actor, investigationID string) ([]model.Evidence, error) {
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelRead); err != nil {
		return nil, err
	}
	return s.store.ListEvidence(ctx, investigationID)
}

// VerifyEvidence 由复核人标记证据已验证（需 write 权限）。
// 复核人不能是证据提交人，已验证的证据不允许重复验证。
func (s *Service) VerifyEvidence(ctx context.Context, actor model.Actor, investigationID, evidenceID string) (*model.Evidence, error) {
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelWrite); err != nil {
		return nil, err
	}

	ev, err := s.store.GetEvidenceByID(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if ev == nil || ev.InvestigationID != investigationID {
		return nil, apperr.NotFound("evidence", evidenceID)
	}
	if ev.CreatedBy == actor.ID {
		return nil, apperr.Validation("evidence cannot be verified by its submitter")
	}

	ok, err := s.store.MarkEvidenceVerified(ctx, investigationID, evidenceID, actor.ID, time.Now().Unix())
	if err != nil {
		return nil, apperr.Persistence(err, "verify evidence")
	}
	if !ok {
		return nil, apperr.Validation("evidence %s is already verified", evidenceID)
	}

	s.audit(ctx, investigationID, "evidence", "verify", actor.ID, map[string]string{
		"evidence_id": evidenceID,
	})
	return s.store.GetEvidenceByID(ctx, evidenceID)
}

// DeleteEvidence 删除证据（需 admin 权限，不可逆）。
func (s *Service) DeleteEvidence(ctx context.Context, actor model.Actor, investigationID, evidenceID string) error {
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelAdmin); err != nil {
		return err
	}

	ok, err := s.store.DeleteEvidence(ctx, investigationID, evidenceID)
	if err != nil {
		return apperr.Persistence(err, "delete evidence")
	}
	if !ok {
		return apperr.NotFound("evidence", evidenceID)
	}

	s.audit(ctx, investigationID, "evidence", "delete", actor.ID, map[string]string{
		"evidence_id": evidenceID,
	})
	return nil
}

// AuditTrail 返回调查的审计日志（需 read 权限），按时间升序。
func (s *Service) AuditTrail(ctx context.Context, actor model.Actor, investigationID string, limit int) ([]model.AuditLog, error) {
	if err := s.perms.Require(ctx, actor, investigationID, model.LevelRead); err != nil {
		return nil, err
	}
	return s.store.ListAuditLogs(ctx, investigationID, limit)
}

func (s *Service) audit(ctx context.Context, investigationID, eventType, action, actor string, detail any) {
	if err := s.store.AppendAudit(ctx, investigationID, eventType, action, "success", actor, "investigation-service", detail); err != nil {
		s.log.Warn("append audit failed",
			"investigation_id", investigationID,
			"action", action,
			"error", err)
	}
}
