// Package analysis 编排一次 OSINT 分析运行。
//
// 运行记录先落库再执行，成功结果可回填调查证据链。
// 单个工具失败不影响整次运行；分析器 panic 被隔离并标记运行失败。
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
	"iris-osint/internal/platform/id"
	"iris-osint/internal/services/analyzer"
	"iris-osint/internal/services/permission"
)

// Store 是编排器所需的存储能力。
type Store interface {
	GetInvestigation(ctx context.Context, investigationID string) (*model.Investigation, error)
	InsertAnalysisRun(ctx context.Context, run model.AnalysisRun) error
	CompleteAnalysisRun(ctx context.Context, runID, resultsJSON string, completedAt, executionTimeMs int64) error
	FailAnalysisRun(ctx context.Context, runID, errorMessage string, completedAt int64) error
	GetAnalysisRun(ctx context.Context, runID string) (*model.AnalysisRun, error)
	ListAnalysisRunsByInvestigation(ctx context.Context, investigationID string) ([]model.AnalysisRun, error)
	InsertEvidence(ctx context.Context, ev model.Evidence) error
	AppendAudit(ctx context.Context, investigationID, eventType, action, status, actor, source string, detail any) error
}

type Orchestrator struct {
	store    Store
	registry *analyzer.Registry
	perms    *permission.Engine
	log      *slog.Logger
}

func NewOrchestrator(store Store, registry *analyzer.Registry, perms *permission.Engine, log *slog.Logger) *Orchestrator {
	return &Orchestrator{store: store, registry: registry, perms: perms, log: log}
}

// Request 是一次分析请求。
type Request struct {
	Target          string           `json:"target"`
	Type            model.TargetType `json:"type"`
	Tools           []string         `json:"tools"`
	InvestigationID string           `json:"investigation_id"`
}

// Summary 是一次分析的调用方摘要。
// Success=false 表示运行整体失败（已落 failed 记录），不是 Go 错误。
type Summary struct {
	Success   bool               `json:"success"`
	RunID     string             `json:"run_id"`
	Results   []model.ToolResult `json:"results,omitempty"`
	Succeeded int                `json:"succeeded"`
	Total     int                `json:"total"`
	Message   string             `json:"message"`
}

// Analyze 执行一次分析。
//
// 目标类型未注册、目标为空、挂靠的调查不存在或无权写入，
// 都在落库之前拒绝，不留运行记录。
// 运行记录落库后，分析器的任何失败（含 panic）都转成 failed 记录。
func (o *Orchestrator) Analyze(ctx context.Context, actor model.Actor, req Request) (*Summary, error) {
	req.Target = strings.TrimSpace(req.Target)
	req.InvestigationID = strings.TrimSpace(req.InvestigationID)
	if req.Target == "" {
		return nil, apperr.Validation("analysis target is required")
	}

	fn, ok := o.registry.Lookup(req.Type)
	if !ok {
		return nil, apperr.Validation("unsupported target type: %s", req.Type)
	}

	// 挂靠调查时要求 write：运行结果会回填证据链。
	if req.InvestigationID != "" {
		if err := o.perms.Require(ctx, actor, req.InvestigationID, model.LevelWrite); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	run := model.AnalysisRun{
		ID:              id.New("run"),
		InvestigationID: req.InvestigationID,
		Target:          req.Target,
		TargetType:      req.Type,
		RequestedTools:  strings.Join(req.Tools, ","),
		CreatedBy:       actor.ID,
		StartedAt:       start.Unix(),
	}
	if err := o.store.InsertAnalysisRun(ctx, run); err != nil {
		return nil, apperr.Persistence(err, "insert analysis run")
	}

	results, panicErr := o.invoke(fn, req.Target)
	if panicErr != nil {
		fault := apperr.AnalyzerFault(panicErr)
		o.log.Error("analyzer panicked",
			"run_id", run.ID,
			"target_type", req.Type,
			"error", fault)
		if err := o.store.FailAnalysisRun(ctx, run.ID, fault.Error(), time.Now().Unix()); err != nil {
			o.log.Warn("mark run failed", "run_id", run.ID, "error", err)
		}
		o.auditRun(ctx, req.InvestigationID, "fail", actor.ID, run.ID)
		return &Summary{
			Success: false,
			RunID:   run.ID,
			Message: "analysis failed: " + fault.Error(),
		}, nil
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		// 工具结果序列化失败等同运行失败。
		_ = o.store.FailAnalysisRun(ctx, run.ID, "marshal results: "+err.Error(), time.Now().Unix())
		return &Summary{Success: false, RunID: run.ID, Message: "analysis failed: unserializable results"}, nil
	}
	elapsed := time.Since(start).Milliseconds()
	if err := o.store.CompleteAnalysisRun(ctx, run.ID, string(resultsJSON), time.Now().Unix(), elapsed); err != nil {
		return nil, apperr.Persistence(err, "complete analysis run")
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	if req.InvestigationID != "" {
		o.foldIntoEvidence(ctx, actor, req.InvestigationID, run.ID, results)
		o.auditRun(ctx, req.InvestigationID, "complete", actor.ID, run.ID)
	}

	return &Summary{
		Success:   true,
		RunID:     run.ID,
		Results:   results,
		Succeeded: succeeded,
		Total:     len(results),
		Message:   fmt.Sprintf("analysis finished: %d/%d tools succeeded", succeeded, len(results)),
	}, nil
}

// invoke 调用分析器并吸收 panic。
func (o *Orchestrator) invoke(fn analyzer.Func, target string) (results []model.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return fn(target), nil
}

// foldIntoEvidence 将成功的工具结果回填为 metadata 证据。
// 逐条尽力而为：单条失败只记日志，不中断其余回填，也不影响运行状态。
func (o *Orchestrator) foldIntoEvidence(ctx context.Context, actor model.Actor, investigationID, runID string, results []model.ToolResult) {
	folded := 0
	for _, r := range results {
		if !r.Success {
			continue
		}
		content, err := json.Marshal(r.Data)
		if err != nil {
			o.log.Warn("fold evidence: marshal tool data", "run_id", runID, "tool", r.Tool, "error", err)
			continue
		}
		ev := model.Evidence{
			ID:              id.New("ev"),
			InvestigationID: investigationID,
			Type:            model.EvidenceMetadata,
			Title:           r.Tool + " result",
			Content:         string(content),
			SourceTool:      r.Tool,
			ConfidenceScore: clampConfidence(r.Confidence),
			CreatedBy:       actor.ID,
			CreatedAt:       time.Now().Unix(),
		}
		if err := o.store.InsertEvidence(ctx, ev); err != nil {
			o.log.Warn("fold evidence: insert", "run_id", runID, "tool", r.Tool, "error", err)
			continue
		}
		folded++
	}
	if folded > 0 {
		_ = o.store.AppendAudit(ctx, investigationID, "analysis", "fold_evidence", "success", actor.ID, "analysis-orchestrator", map[string]any{
			"run_id": runID,
			"folded": folded,
		})
	}
}

// clampConfidence 将置信度压回 [0,100]。
// 注册表对外部分析器开放，工具结果不可信任自带合法分值。
func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (o *Orchestrator) auditRun(ctx context.Context, investigationID, action, actorID, runID string) {
	if investigationID == "" {
		return
	}
	status := "success"
	if action == "fail" {
		status = "failure"
	}
	if err := o.store.AppendAudit(ctx, investigationID, "analysis", action, status, actorID, "analysis-orchestrator", map[string]string{
		"run_id": runID,
	}); err != nil {
		o.log.Warn("append audit failed", "run_id", runID, "error", err)
	}
}

// GetRun 读取运行记录。
// 挂靠调查的运行要求 read 权限；游离运行仅发起者与平台所有者可见。
func (o *Orchestrator) GetRun(ctx context.Context, actor model.Actor, runID string) (*model.AnalysisRun, error) {
	run, err := o.store.GetAnalysisRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperr.NotFound("analysis run", runID)
	}

	if run.InvestigationID != "" {
		if err := o.perms.Require(ctx, actor, run.InvestigationID, model.LevelRead); err != nil {
			return nil, err
		}
		return run, nil
	}
	if actor.Role != model.RoleOwner && run.CreatedBy != actor.ID {
		return nil, apperr.Authorization("detached run %s is only visible to its creator", runID)
	}
	return run, nil
}

// ListRuns 返回调查的分析历史（需 read 权限），最新在前。
func (o *Orchestrator) ListRuns(ctx context.Context, actor model.Actor, investigationID string) ([]model.AnalysisRun, error) {
	if err := o.perms.Require(ctx, actor, investigationID, model.LevelRead); err != nil {
		return nil, err
	}
	return o.store.ListAnalysisRunsByInvestigation(ctx, investigationID)
}
