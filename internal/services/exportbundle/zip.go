// Package exportbundle 生成“认证导出包（ZIP）”。
//
// 包内容（v1）：
// - manifest.json：调查/证据/分析/审计/报告的结构化清单
// - hashes.sha256：包内各文件（除自身）的 sha256 列表（sha256sum 兼容格式）
// - reports/..：已生成的报告产物（不含 bundle 自身，避免递归打包）
//
// 先满足内部流转/复核；签名、时间戳等司法级增强后续再加。
package exportbundle

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
	"iris-osint/internal/platform/hash"
	"iris-osint/internal/platform/id"
	"iris-osint/internal/services/permission"
	"iris-osint/internal/services/report"
)

// Store 是导出器所需的存储能力。
type Store interface {
	GetInvestigation(ctx context.Context, investigationID string) (*model.Investigation, error)
	ListEvidence(ctx context.Context, investigationID string) ([]model.Evidence, error)
	ListAnalysisRunsByInvestigation(ctx context.Context, investigationID string) ([]model.AnalysisRun, error)
	ListAuditLogs(ctx context.Context, investigationID string, limit int) ([]model.AuditLog, error)
	ListReportsByInvestigation(ctx context.Context, investigationID string) ([]model.Report, error)
	InsertReport(ctx context.Context, r model.Report) error
	AppendAudit(ctx context.Context, investigationID, eventType, action, status, actor, source string, detail any) error
}

// Blob 读取已有报告产物并写入导出包。
type Blob interface {
	Put(key string, r io.Reader) error
	Open(key string) (io.ReadCloser, error)
}

const manifestSchemaV1 = "iris_osint.certified_export_manifest.v1"

// FileHashEntry 记录包内单个文件的完整性信息。
type FileHashEntry struct {
	Path      string `json:"path"`       // ZIP 内路径（"/" 分隔）
	SHA256    string `json:"sha256"`     // 文件内容 SHA-256
	SizeBytes int64  `json:"size_bytes"` // 原始字节数
	Kind      string `json:"kind"`       // report|manifest
}

// ManifestReport 将报告行与其在包内的路径绑定。
type ManifestReport struct {
	Report  model.Report `json:"report"`
	ZipPath string       `json:"zip_path,omitempty"`
}

// Manifest 是导出包的结构化清单。
type Manifest struct {
	Schema        string              `json:"schema"`
	GeneratedAt   int64               `json:"generated_at"`
	GeneratedBy   string              `json:"generated_by"`
	Platform      string              `json:"platform"`
	Investigation model.Investigation `json:"investigation"`
	Evidence      []model.Evidence    `json:"evidence"`
	Runs          []model.AnalysisRun `json:"analysis_results"`
	Audits        []model.AuditLog    `json:"audit_trail"`
	Reports       []ManifestReport    `json:"reports"`
	Files         []FileHashEntry     `json:"files"`
	Warnings      []string            `json:"warnings,omitempty"`
	Stats         map[string]any      `json:"stats"`
}

type Exporter struct {
	store Store
	blob  Blob
	perms *permission.Engine
	log   *slog.Logger
}

func NewExporter(store Store, blob Blob, perms *permission.Engine, log *slog.Logger) *Exporter {
	return &Exporter{store: store, blob: blob, perms: perms, log: log}
}

// Export 生成认证导出包并登记为 format=bundle 的报告行（需 read 权限）。
// 缺失的报告产物按 best-effort 跳过并写入 manifest warnings。
func (e *Exporter) Export(ctx context.Context, actor model.Actor, investigationID string) (*model.Report, error) {
	if err := e.perms.Require(ctx, actor, investigationID, model.LevelRead); err != nil {
		return nil, err
	}

	inv, err := e.store.GetInvestigation(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.NotFound("investigation", investigationID)
	}

	evidence, err := e.store.ListEvidence(ctx, investigationID)
	if err != nil {
		return nil, apperr.Persistence(err, "list evidence")
	}
	runs, err := e.store.ListAnalysisRunsByInvestigation(ctx, investigationID)
	if err != nil {
		return nil, apperr.Persistence(err, "list analysis runs")
	}
	audits, err := e.store.ListAuditLogs(ctx, investigationID, 5000)
	if err != nil {
		return nil, apperr.Persistence(err, "list audit logs")
	}
	allReports, err := e.store.ListReportsByInvestigation(ctx, investigationID)
	if err != nil {
		return nil, apperr.Persistence(err, "list reports")
	}

	at := time.Now()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var warnings []string
	var fileHashes []FileHashEntry
	manifestReports := make([]ManifestReport, 0, len(allReports))

	// 既有报告产物（bundle 自身跳过，避免 zip 套 zip）。
	for _, r := range allReports {
		if r.Format == model.ReportBundle {
			manifestReports = append(manifestReports, ManifestReport{Report: r})
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		zipPath := "reports/" + r.ID + "." + string(r.Format)
		sum, size, err := e.copyBlobIntoZip(zw, r.BlobKey, zipPath)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skip report %s: %v", r.ID, err))
			manifestReports = append(manifestReports, ManifestReport{Report: r})
			continue
		}
		if sum != r.SHA256 {
			// 产物不可变是硬约束，哈希漂移必须显式暴露。
			warnings = append(warnings, fmt.Sprintf("report %s artifact hash mismatch: registered=%s actual=%s", r.ID, r.SHA256, sum))
		}
		fileHashes = append(fileHashes, FileHashEntry{Path: zipPath, SHA256: sum, SizeBytes: size, Kind: "report"})
		manifestReports = append(manifestReports, ManifestReport{Report: r, ZipPath: zipPath})
	}

	manifest := Manifest{
		Schema:        manifestSchemaV1,
		GeneratedAt:   at.Unix(),
		GeneratedBy:   actor.ID,
		Platform:      "Iris OSINT",
		Investigation: *inv,
		Evidence:      evidence,
		Runs:          runs,
		Audits:        audits,
		Reports:       manifestReports,
		Warnings:      warnings,
		Stats: map[string]any{
			"evidence_count": len(evidence),
			"run_count":      len(runs),
			"audit_count":    len(audits),
			"report_count":   len(allReports),
		},
	}

	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	manifest.Files = fileHashes

	manifestRaw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestSum, manifestSize, err := writeZipFileFromBytes(zw, "manifest.json", manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	fileHashes = append(fileHashes, FileHashEntry{Path: "manifest.json", SHA256: manifestSum, SizeBytes: manifestSize, Kind: "manifest"})

	// hashes.sha256（sha256sum 兼容格式，不含自身）。
	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	hashLines := make([]string, 0, len(fileHashes)+4)
	hashLines = append(hashLines, "# iris-osint certified export hash list")
	hashLines = append(hashLines, fmt.Sprintf("# generated_at=%d", at.Unix()))
	hashLines = append(hashLines, "# format: <sha256><two spaces><path>")
	for _, fh := range fileHashes {
		hashLines = append(hashLines, fmt.Sprintf("%s  %s", fh.SHA256, fh.Path))
	}
	hashLines = append(hashLines, "")
	if _, _, err := writeZipFileFromBytes(zw, "hashes.sha256", []byte(strings.Join(hashLines, "\n"))); err != nil {
		return nil, fmt.Errorf("write hashes.sha256: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}

	zipSum := hash.Bytes(buf.Bytes())
	reportID := id.New("report")
	blobKey := fmt.Sprintf("exports/%s/%s.zip", inv.ID, reportID)
	if err := e.blob.Put(blobKey, bytes.NewReader(buf.Bytes())); err != nil {
		return nil, apperr.Persistence(err, "store export bundle")
	}

	rep := model.Report{
		ID:              reportID,
		InvestigationID: inv.ID,
		Title:           "Certified Export - " + inv.Name,
		Summary: fmt.Sprintf("Certified ZIP export for %q: %d evidence items, %d runs, %d reports, %d audit events.",
			inv.Name, len(evidence), len(runs), len(allReports), len(audits)),
		Format:             model.ReportBundle,
		CertificationLevel: model.CertForensic,
		BlobKey:            blobKey,
		SHA256:             zipSum,
		CertificationKey:   report.CertificationKey(model.CertForensic, at.UnixMilli(), zipSum),
		GeneratedBy:        actor.ID,
		GeneratedAt:        at.Unix(),
	}
	if err := e.store.InsertReport(ctx, rep); err != nil {
		return nil, apperr.Persistence(err, "register export bundle")
	}

	if err := e.store.AppendAudit(ctx, inv.ID, "report", "export_bundle", "success", actor.ID, "export-bundle", map[string]any{
		"report_id":  rep.ID,
		"zip_sha256": zipSum,
		"warnings":   warnings,
	}); err != nil {
		e.log.Warn("append audit failed", "report_id", rep.ID, "error", err)
	}

	e.log.Info("export bundle generated",
		"report_id", rep.ID,
		"investigation_id", inv.ID,
		"files", len(fileHashes),
		"warnings", len(warnings))
	return &rep, nil
}

// copyBlobIntoZip 把 blob 产物写入 ZIP，同时计算 sha256 与大小。
func (e *Exporter) copyBlobIntoZip(zw *zip.Writer, blobKey, zipPath string) (sum string, size int64, err error) {
	rc, err := e.blob.Open(blobKey)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	hdr := &zip.FileHeader{
		Name:     zipPath,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), rc)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

func writeZipFileFromBytes(zw *zip.Writer, zipPath string, b []byte) (sum string, size int64, err error) {
	hdr := &zip.FileHeader{
		Name:     zipPath,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
