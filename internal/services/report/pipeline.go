// Package report 实现报告生成与认证流水线。
//
// 流水线：快照取数 -> 按格式渲染 -> 内容哈希 -> 认证键 -> 产物落盘 -> 入库登记。
// 报告是不可变快照，重新生成永远产生新行与新产物，不覆盖旧报告。
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
	"iris-osint/internal/platform/hash"
	"iris-osint/internal/platform/id"
	"iris-osint/internal/services/permission"
)

// Store 是报告流水线所需的存储能力。
type Store interface {
	GetInvestigation(ctx context.Context, investigationID string) (*model.Investigation, error)
	ListEvidence(ctx context.Context, investigationID string) ([]model.Evidence, error)
	ListAnalysisRunsByInvestigation(ctx context.Context, investigationID string) ([]model.AnalysisRun, error)
	ListAuditLogs(ctx context.Context, investigationID string, limit int) ([]model.AuditLog, error)
	InsertReport(ctx context.Context, r model.Report) error
	GetReportByID(ctx context.Context, reportID string) (*model.Report, error)
	ListReportsByInvestigation(ctx context.Context, investigationID string) ([]model.Report, error)
	AppendAudit(ctx context.Context, investigationID, eventType, action, status, actor, source string, detail any) error
}

// Blob 是产物落盘能力（一次写入、永不覆盖）。
type Blob interface {
	Put(key string, r io.Reader) error
	Open(key string) (io.ReadCloser, error)
}

type Pipeline struct {
	store Store
	blob  Blob
	perms *permission.Engine
	log   *slog.Logger
}

func NewPipeline(store Store, blob Blob, perms *permission.Engine, log *slog.Logger) *Pipeline {
	return &Pipeline{store: store, blob: blob, perms: perms, log: log}
}

// Request 是一次报告生成请求。
// IncludeEvidence / IncludeMetadata 缺省为 true，显式传 false 才裁剪。
type Request struct {
	InvestigationID    string                   `json:"investigation_id"`
	Format             model.ReportFormat       `json:"format"`
	CertificationLevel model.CertificationLevel `json:"certification_level"`
	IncludeEvidence    *bool                    `json:"include_evidence,omitempty"`
	IncludeMetadata    *bool                    `json:"include_metadata,omitempty"`
}

// boolOrTrue 读取可选布尔项，未设置按 true 处理。
func boolOrTrue(v *bool) bool {
	return v == nil || *v
}

// Generate 生成一份报告（需 read 权限：报告只读取调查数据）。
func (p *Pipeline) Generate(ctx context.Context, actor model.Actor, req Request) (*model.Report, error) {
	if !req.Format.Valid() {
		return nil, apperr.Validation("unsupported report format: %s", req.Format)
	}
	if req.CertificationLevel == "" {
		req.CertificationLevel = model.CertBasic
	}
	if !req.CertificationLevel.Valid() {
		return nil, apperr.Validation("invalid certification level: %s", req.CertificationLevel)
	}
	if err := p.perms.Require(ctx, actor, req.InvestigationID, model.LevelRead); err != nil {
		return nil, err
	}

	inv, err := p.store.GetInvestigation(ctx, req.InvestigationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.NotFound("investigation", req.InvestigationID)
	}

	snap, err := gatherSnapshot(ctx, p.store, *inv)
	if err != nil {
		return nil, apperr.Persistence(err, "gather report snapshot")
	}
	if !boolOrTrue(req.IncludeEvidence) {
		snap.Evidence = []model.Evidence{}
	}
	includeMetadata := boolOrTrue(req.IncludeMetadata)

	at := time.Now()
	var content []byte
	switch req.Format {
	case model.ReportJSON:
		content, err = renderJSON(snap, req.CertificationLevel, actor.ID, at, includeMetadata)
	case model.ReportHTML:
		content, err = renderHTML(snap, req.CertificationLevel, at, includeMetadata)
	case model.ReportPDF:
		content, err = renderPDF(snap, req.CertificationLevel, at, includeMetadata)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", req.Format, err)
	}

	sum := hash.Bytes(content)
	reportID := id.New("report")
	blobKey := fmt.Sprintf("reports/%s/%s.%s", inv.ID, reportID, req.Format)
	if err := p.blob.Put(blobKey, bytes.NewReader(content)); err != nil {
		return nil, apperr.Persistence(err, "store report artifact")
	}

	rep := model.Report{
		ID:              reportID,
		InvestigationID: inv.ID,
		Title:           "Investigation Report - " + inv.Name,
		Summary: fmt.Sprintf("OSINT investigation report for %q. %d evidence items, %d analysis runs. Target: %s (%s). Status: %s.",
			inv.Name, len(snap.Evidence), len(snap.Runs), inv.TargetType, inv.TargetValue, inv.Status),
		Format:             req.Format,
		CertificationLevel: req.CertificationLevel,
		BlobKey:            blobKey,
		SHA256:             sum,
		CertificationKey:   CertificationKey(req.CertificationLevel, at.UnixMilli(), sum),
		GeneratedBy:        actor.ID,
		GeneratedAt:        at.Unix(),
	}
	if err := p.store.InsertReport(ctx, rep); err != nil {
		return nil, apperr.Persistence(err, "register report")
	}

	if err := p.store.AppendAudit(ctx, inv.ID, "report", "generate", "success", actor.ID, "report-pipeline", map[string]any{
		"report_id":           rep.ID,
		"format":              string(rep.Format),
		"certification_level": string(rep.CertificationLevel),
		"sha256":              rep.SHA256,
	}); err != nil {
		p.log.Warn("append audit failed", "report_id", rep.ID, "error", err)
	}

	p.log.Info("report generated",
		"report_id", rep.ID,
		"investigation_id", inv.ID,
		"format", rep.Format,
		"sha256", rep.SHA256)
	return &rep, nil
}

// List 返回调查的报告（需 read 权限），最新在前。
func (p *Pipeline) List(ctx context.Context, actor model.Actor, investigationID string) ([]model.Report, error) {
	if err := p.perms.Require(ctx, actor, investigationID, model.LevelRead); err != nil {
		return nil, err
	}
	return p.store.ListReportsByInvestigation(ctx, investigationID)
}

// Get 读取报告元数据（需对所属调查持有 read 权限）。
func (p *Pipeline) Get(ctx context.Context, actor model.Actor, reportID string) (*model.Report, error) {
	rep, err := p.store.GetReportByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, apperr.NotFound("report", reportID)
	}
	if err := p.perms.Require(ctx, actor, rep.InvestigationID, model.LevelRead); err != nil {
		return nil, err
	}
	return rep, nil
}

// Download 打开报告产物流。调用方负责 Close。
func (p *Pipeline) Download(ctx context.Context, actor model.Actor, reportID string) (*model.Report, io.ReadCloser, error) {
	rep, err := p.Get(ctx, actor, reportID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := p.blob.Open(rep.BlobKey)
	if err != nil {
		return nil, nil, apperr.Persistence(err, "open report artifact")
	}
	return rep, rc, nil
}

// Preview 返回可内联预览的报告内容。
// 仅 json/html 可预览；pdf/bundle 是二进制产物，必须走下载。
func (p *Pipeline) Preview(ctx context.Context, actor model.Actor, reportID string) (*model.Report, []byte, error) {
	rep, err := p.Get(ctx, actor, reportID)
	if err != nil {
		return nil, nil, err
	}
	if rep.Format != model.ReportJSON && rep.Format != model.ReportHTML {
		return nil, nil, apperr.Validation("%s report is a binary artifact, use download", rep.Format)
	}
	rc, err := p.blob.Open(rep.BlobKey)
	if err != nil {
		return nil, nil, apperr.Persistence(err, "open report artifact")
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, apperr.Persistence(err, "read report artifact")
	}
	return rep, content, nil
}
