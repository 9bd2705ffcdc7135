package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/hash"
	"iris-osint/internal/platform/id"

	_ "modernc.org/sqlite"
)

// Open 打开 SQLite 数据库并设置统一的连接参数。
//
// 连接池固定为单连接：modernc SQLite 在多连接并发写时容易出现
// SQLITE_BUSY，单连接 + busy_timeout 是本项目各入口的统一约定，
// 任何查询都不允许在 rows.Next() 循环内再发起子查询（会死锁）。
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	// 级联删除依赖外键约束，必须显式开启。
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	return db, nil
}

// Store 封装与 SQLite 的读写逻辑。
//
// 并发约定：对同一调查的变更（状态流转/证据写入/授权）按
// investigation_id 串行化；读取与报告快照不取锁。
// 不同调查之间、以及游离分析运行之间互不阻塞。
type Store struct {
	db    *sql.DB
	locks sync.Map // investigation_id -> *sync.Mutex
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// lockInvestigation 获取指定调查的互斥锁，返回解锁函数。
func (s *Store) lockInvestigation(investigationID string) func() {
	v, _ := s.locks.LoadOrStore(investigationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// --- investigations ---

// CreateInvestigation 写入一条新调查。
// 创建者隐含 admin 权限，不落授权行。
func (s *Store) CreateInvestigation(ctx context.Context, inv model.Investigation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO investigations(
			investigation_id, name, description, target_type, target_value,
			status, priority, created_by, started_at, completed_at, created_at, updated_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID,
		inv.Name,
		nullIfEmpty(inv.Description),
		inv.TargetType,
		inv.TargetValue,
		string(inv.Status),
		string(inv.Priority),
		inv.CreatedBy,
		nullIfZero(inv.StartedAt),
		nullIfZero(inv.CompletedAt),
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert investigation: %w", err)
	}
	return nil
}

const investigationColumns = `
	investigation_id,
	name,
	COALESCE(description, ''),
	target_type,
	target_value,
	status,
	priority,
	created_by,
	COALESCE(started_at, 0),
	COALESCE(completed_at, 0),
	created_at,
	updated_at`

func scanInvestigation(row interface{ Scan(...any) error }) (*model.Investigation, error) {
	var out model.Investigation
	var status, priority string
	if err := row.Scan(
		&out.ID,
		&out.Name,
		&out.Description,
		&out.TargetType,
		&out.TargetValue,
		&status,
		&priority,
		&out.CreatedBy,
		&out.StartedAt,
		&out.CompletedAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return nil, err
	}
	out.Status = model.InvestigationStatus(status)
	out.Priority = model.Priority(priority)
	return &out, nil
}

// GetInvestigation 按 ID 查询调查；不存在时返回 (nil, nil)。
func (s *Store) GetInvestigation(ctx context.Context, investigationID string) (*model.Investigation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+investigationColumns+`
		FROM investigations
		WHERE investigation_id = ?
		LIMIT 1
	`, investigationID)

	out, err := scanInvestigation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query investigation: %w", err)
	}
	return out, nil
}

// ListInvestigationsForActor 返回操作者可见的调查：自己创建的 + 被授权的。
// 按更新时间倒序。
func (s *Store) ListInvestigationsForActor(ctx context.Context, actorID string) ([]model.Investigation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+investigationColumns+`
		FROM investigations
		WHERE created_by = ?
		   OR investigation_id IN (SELECT investigation_id FROM permissions WHERE actor_id = ?)
		ORDER BY updated_at DESC, created_at DESC
	`, actorID, actorID)
	if err != nil {
		return nil, fmt.Errorf("query investigations for actor: %w", err)
	}
	defer rows.Close()
	return collectInvestigations(rows)
}

// ListAllInvestigations 返回全部调查（平台所有者视角），按更新时间倒序。
func (s *Store) ListAllInvestigations(ctx context.Context) ([]model.Investigation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+investigationColumns+`
		FROM investigations
		ORDER BY updated_at DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query investigations: %w", err)
	}
	defer rows.Close()
	return collectInvestigations(rows)
}

func collectInvestigations(rows *sql.Rows) ([]model.Investigation, error) {
	var out []model.Investigation
	for rows.Next() {
		item, err := scanInvestigation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan investigation: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate investigations: %w", err)
	}
	if out == nil {
		out = []model.Investigation{}
	}
	return out, nil
}

// UpdateInvestigationStatus 执行状态流转。
// active 记录 started_at，completed 记录 completed_at；
// 整个变更按调查串行化，避免并发流转互相覆盖。
func (s *Store) UpdateInvestigationStatus(ctx context.Context, investigationID string, status model.InvestigationStatus) (bool, error) {
	unlock := s.lockInvestigation(investigationID)
	defer unlock()

	now := time.Now().Unix()
	query := `UPDATE investigations SET status = ?, updated_at = ?`
	args := []any{string(status), now}
	switch status {
	case model.StatusActive:
		query += `, started_at = ?`
		args = append(args, now)
	case model.StatusCompleted:
		query += `, completed_at = ?`
		args = append(args, now)
	}
	query += ` WHERE investigation_id = ?`
	args = append(args, investigationID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update investigation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update investigation status rows: %w", err)
	}
	return n > 0, nil
}

// DeleteInvestigation 删除调查；外键级联清理证据/授权/分析/报告/审计。
func (s *Store) DeleteInvestigation(ctx context.Context, investigationID string) (bool, error) {
	unlock := s.lockInvestigation(investigationID)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM investigations WHERE investigation_id = ?
	`, investigationID)
	if err != nil {
		return false, fmt.Errorf("delete investigation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete investigation rows: %w", err)
	}
	return n > 0, nil
}

// --- permissions ---

// UpsertPermission 写入或覆盖授权（last write wins，不保留历史）。
func (s *Store) UpsertPermission(ctx context.Context, g model.PermissionGrant) error {
	unlock := s.lockInvestigation(g.InvestigationID)
	defer unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions(permission_id, investigation_id, actor_id, level, granted_by, granted_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(investigation_id, actor_id) DO UPDATE SET
			level=excluded.level,
			granted_by=excluded.granted_by,
			granted_at=excluded.granted_at
	`, g.ID, g.InvestigationID, g.ActorID, string(g.Level), g.GrantedBy, g.GrantedAt)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

// GetPermission 查询显式授权；不存在时返回 (nil, nil)。
func (s *Store) GetPermission(ctx context.Context, investigationID, actorID string) (*model.PermissionGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT permission_id, investigation_id, actor_id, level, granted_by, granted_at
		FROM permissions
		WHERE investigation_id = ? AND actor_id = ?
		LIMIT 1
	`, investigationID, actorID)

	var out model.PermissionGrant
	var level string
	if err := row.Scan(&out.ID, &out.InvestigationID, &out.ActorID, &level, &out.GrantedBy, &out.GrantedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query permission: %w", err)
	}
	out.Level = model.PermissionLevel(level)
	return &out, nil
}

// --- evidence ---

// InsertEvidence 追加一条证据。record_hash 为空时按字段自动计算。
func (s *Store) InsertEvidence(ctx context.Context, ev model.Evidence) error {
	unlock := s.lockInvestigation(ev.InvestigationID)
	defer unlock()

	recordHash := ev.RecordHash
	if recordHash == "" {
		recordHash = hash.Text(
			ev.ID,
			ev.InvestigationID,
			string(ev.Type),
			ev.Title,
			ev.Content,
			ev.SourceTool,
			fmt.Sprintf("%d", ev.ConfidenceScore),
			ev.CreatedBy,
			fmt.Sprintf("%d", ev.CreatedAt),
		)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence(
			evidence_id, investigation_id, evidence_type, title, content,
			source_tool, source_url, confidence_score, verified, verified_by,
			verified_at, created_by, created_at, record_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?, ?)
	`,
		ev.ID,
		ev.InvestigationID,
		string(ev.Type),
		ev.Title,
		nullIfEmpty(ev.Content),
		nullIfEmpty(ev.SourceTool),
		nullIfEmpty(ev.SourceURL),
		ev.ConfidenceScore,
		ev.CreatedBy,
		ev.CreatedAt,
		recordHash,
	)
	if err != nil {
		return fmt.Errorf("insert evidence %s: %w", ev.ID, err)
	}
	return nil
}

const evidenceColumns = `
	evidence_id,
	investigation_id,
	evidence_type,
	title,
	COALESCE(content, ''),
	COALESCE(source_tool, ''),
	COALESCE(source_url, ''),
	confidence_score,
	verified,
	COALESCE(verified_by, ''),
	COALESCE(verified_at, 0),
	created_by,
	created_at,
	record_hash`

func scanEvidence(row interface{ Scan(...any) error }) (*model.Evidence, error) {
	var out model.Evidence
	var evType string
	var verifiedInt int
	if err := row.Scan(
		&out.ID,
		&out.InvestigationID,
		&evType,
		&out.Title,
		&out.Content,
		&out.SourceTool,
		&out.SourceURL,
		&out.ConfidenceScore,
		&verifiedInt,
		&out.VerifiedBy,
		&out.VerifiedAt,
		&out.CreatedBy,
		&out.CreatedAt,
		&out.RecordHash,
	); err != nil {
		return nil, err
	}
	out.Type = model.EvidenceType(evType)
	out.Verified = verifiedInt == 1
	return &out, nil
}

// ListEvidence 返回调查的全部证据，按采集时间倒序（最新在前）。
// 每次调用都即时查询，不做缓存。
func (s *Store) ListEvidence(ctx context.Context, investigationID string) ([]model.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE investigation_id = ?
		ORDER BY created_at DESC, evidence_id DESC
	`, investigationID)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var out []model.Evidence
	for rows.Next() {
		item, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	if out == nil {
		out = []model.Evidence{}
	}
	return out, nil
}

// GetEvidenceByID 按 ID 查询证据；不存在时返回 (nil, nil)。
func (s *Store) GetEvidenceByID(ctx context.Context, evidenceID string) (*model.Evidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE evidence_id = ?
		LIMIT 1
	`, evidenceID)

	out, err := scanEvidence(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query evidence by id: %w", err)
	}
	return out, nil
}

// MarkEvidenceVerified 由复核人标记证据已验证。
// WHERE verified=0 保证只能验证一次（追加式证据不允许反复改写）。
func (s *Store) MarkEvidenceVerified(ctx context.Context, investigationID, evidenceID, verifiedBy string, verifiedAt int64) (bool, error) {
	unlock := s.lockInvestigation(investigationID)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence
		SET verified = 1, verified_by = ?, verified_at = ?
		WHERE evidence_id = ? AND investigation_id = ? AND verified = 0
	`, verifiedBy, verifiedAt, evidenceID, investigationID)
	if err != nil {
		return false, fmt.Errorf("mark evidence verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark evidence verified rows: %w", err)
	}
	return n > 0, nil
}

// DeleteEvidence 删除证据（admin 专属、不可逆）。
func (s *Store) DeleteEvidence(ctx context.Context, investigationID, evidenceID string) (bool, error) {
	unlock := s.lockInvestigation(investigationID)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM evidence WHERE evidence_id = ? AND investigation_id = ?
	`, evidenceID, investigationID)
	if err != nil {
		return false, fmt.Errorf("delete evidence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete evidence rows: %w", err)
	}
	return n > 0, nil
}

// CountEvidence 返回调查的证据条数。
func (s *Store) CountEvidence(ctx context.Context, investigationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM evidence WHERE investigation_id = ?
	`, investigationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count evidence: %w", err)
	}
	return n, nil
}

// --- analysis runs ---

// InsertAnalysisRun 写入 running 状态的运行记录。
// 必须在调用任何分析器之前落库：运行中崩溃会留下可观测的
// running 残留记录，而不是静默丢失。
func (s *Store) InsertAnalysisRun(ctx context.Context, run model.AnalysisRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs(
			run_id, investigation_id, target, target_type, requested_tools,
			status, created_by, started_at
		)
		VALUES(?, ?, ?, ?, ?, 'running', ?, ?)
	`,
		run.ID,
		nullIfEmpty(run.InvestigationID),
		run.Target,
		string(run.TargetType),
		nullIfEmpty(run.RequestedTools),
		run.CreatedBy,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

// CompleteAnalysisRun 将运行标记为 completed 并写入结果。
// WHERE status='running' 保证状态只流转一次、永不回退。
func (s *Store) CompleteAnalysisRun(ctx context.Context, runID, resultsJSON string, completedAt, executionTimeMs int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = 'completed', results_json = ?, completed_at = ?, execution_time_ms = ?
		WHERE run_id = ? AND status = 'running'
	`, resultsJSON, completedAt, executionTimeMs, runID)
	if err != nil {
		return fmt.Errorf("complete analysis run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete analysis run rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("analysis run %s is not running", runID)
	}
	return nil
}

// FailAnalysisRun 将运行标记为 failed 并记录错误信息。
func (s *Store) FailAnalysisRun(ctx context.Context, runID, errorMessage string, completedAt int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = 'failed', error_message = ?, completed_at = ?
		WHERE run_id = ? AND status = 'running'
	`, errorMessage, completedAt, runID)
	if err != nil {
		return fmt.Errorf("fail analysis run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail analysis run rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("analysis run %s is not running", runID)
	}
	return nil
}

const analysisRunColumns = `
	run_id,
	COALESCE(investigation_id, ''),
	target,
	target_type,
	COALESCE(requested_tools, ''),
	status,
	COALESCE(results_json, ''),
	COALESCE(error_message, ''),
	created_by,
	started_at,
	COALESCE(completed_at, 0),
	COALESCE(execution_time_ms, 0)`

func scanAnalysisRun(row interface{ Scan(...any) error }) (*model.AnalysisRun, error) {
	var out model.AnalysisRun
	var targetType, status, resultsJSON string
	if err := row.Scan(
		&out.ID,
		&out.InvestigationID,
		&out.Target,
		&targetType,
		&out.RequestedTools,
		&status,
		&resultsJSON,
		&out.ErrorMessage,
		&out.CreatedBy,
		&out.StartedAt,
		&out.CompletedAt,
		&out.ExecutionTimeMs,
	); err != nil {
		return nil, err
	}
	out.TargetType = model.TargetType(targetType)
	out.Status = model.RunStatus(status)
	if resultsJSON != "" {
		// 结果 JSON 损坏不应让整条记录不可读，结果置空即可。
		_ = json.Unmarshal([]byte(resultsJSON), &out.Results)
	}
	return &out, nil
}

// GetAnalysisRun 按 ID 查询运行记录；不存在时返回 (nil, nil)。
func (s *Store) GetAnalysisRun(ctx context.Context, runID string) (*model.AnalysisRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+analysisRunColumns+`
		FROM analysis_runs
		WHERE run_id = ?
		LIMIT 1
	`, runID)

	out, err := scanAnalysisRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query analysis run: %w", err)
	}
	return out, nil
}

// ListAnalysisRunsByInvestigation 返回调查的分析历史，按开始时间倒序。
func (s *Store) ListAnalysisRunsByInvestigation(ctx context.Context, investigationID string) ([]model.AnalysisRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisRunColumns+`
		FROM analysis_runs
		WHERE investigation_id = ?
		ORDER BY started_at DESC, run_id DESC
	`, investigationID)
	if err != nil {
		return nil, fmt.Errorf("query analysis runs: %w", err)
	}
	defer rows.Close()
	return collectAnalysisRuns(rows)
}

// ListStuckRuns 返回开始时间早于 before、仍处于 running 的运行。
// 这类记录是孤儿（调用方超时放弃、进程中途崩溃），
// 本核心只暴露查询，不做自动回收。
func (s *Store) ListStuckRuns(ctx context.Context, before int64) ([]model.AnalysisRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisRunColumns+`
		FROM analysis_runs
		WHERE status = 'running' AND started_at < ?
		ORDER BY started_at ASC, run_id ASC
	`, before)
	if err != nil {
		return nil, fmt.Errorf("query stuck runs: %w", err)
	}
	defer rows.Close()
	return collectAnalysisRuns(rows)
}

func collectAnalysisRuns(rows *sql.Rows) ([]model.AnalysisRun, error) {
	var out []model.AnalysisRun
	for rows.Next() {
		item, err := scanAnalysisRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis runs: %w", err)
	}
	if out == nil {
		out = []model.AnalysisRun{}
	}
	return out, nil
}

// --- reports ---

// InsertReport 登记一条报告产物。报告是不可变快照，只插入、不更新。
func (s *Store) InsertReport(ctx context.Context, r model.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports(
			report_id, investigation_id, title, summary, format,
			certification_level, blob_key, sha256, certification_key,
			generated_by, generated_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.InvestigationID,
		r.Title,
		nullIfEmpty(r.Summary),
		string(r.Format),
		string(r.CertificationLevel),
		r.BlobKey,
		r.SHA256,
		r.CertificationKey,
		r.GeneratedBy,
		r.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

const reportColumns = `
	report_id,
	investigation_id,
	title,
	COALESCE(summary, ''),
	format,
	certification_level,
	blob_key,
	sha256,
	certification_key,
	generated_by,
	generated_at`

func scanReport(row interface{ Scan(...any) error }) (*model.Report, error) {
	var out model.Report
	var format, level string
	if err := row.Scan(
		&out.ID,
		&out.InvestigationID,
		&out.Title,
		&out.Summary,
		&format,
		&level,
		&out.BlobKey,
		&out.SHA256,
		&out.CertificationKey,
		&out.GeneratedBy,
		&out.GeneratedAt,
	); err != nil {
		return nil, err
	}
	out.Format = model.ReportFormat(format)
	out.CertificationLevel = model.CertificationLevel(level)
	return &out, nil
}

// GetReportByID 按 ID 查询报告；不存在时返回 (nil, nil)。
func (s *Store) GetReportByID(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE report_id = ?
		LIMIT 1
	`, reportID)

	out, err := scanReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	return out, nil
}

// ListReportsByInvestigation 返回调查的全部报告，按生成时间倒序。
func (s *Store) ListReportsByInvestigation(ctx context.Context, investigationID string) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE investigation_id = ?
		ORDER BY generated_at DESC, report_id DESC
	`, investigationID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		item, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	if out == nil {
		out = []model.Report{}
	}
	return out, nil
}

// GetLatestReportByInvestigation 返回调查最新的一份报告；没有时返回 (nil, nil)。
func (s *Store) GetLatestReportByInvestigation(ctx context.Context, investigationID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE investigation_id = ?
		ORDER BY generated_at DESC, report_id DESC
		LIMIT 1
	`, investigationID)

	out, err := scanReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest report: %w", err)
	}
	return out, nil
}

// --- audit logs ---

// AppendAudit 写入审计日志，并生成链式 hash 以便后续校验完整性。
//
// 读前链尾 + 写新记录必须在调查锁内成对执行，否则并发追加会分叉链。
// 链序以 seq（插入序）为准：occurred_at 只有秒级精度，同秒事件无法定序。
func (s *Store) AppendAudit(ctx context.Context, investigationID, eventType, action, status, actor, source string, detail any) error {
	detailJSON := []byte("{}")
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			detailJSON = raw
		}
	}

	unlock := s.lockInvestigation(investigationID)
	defer unlock()

	prev := ""
	err := s.db.QueryRowContext(ctx, `
		SELECT chain_hash
		FROM audit_logs
		WHERE investigation_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, investigationID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query previous chain hash: %w", err)
	}

	now := time.Now().Unix()
	eventID := id.New("evt")
	chain := hash.Text(prev, investigationID, eventType, action, status, fmt.Sprintf("%d", now), string(detailJSON))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs(
			event_id, investigation_id, event_type, action, status,
			actor, source, detail_json, occurred_at, chain_prev_hash, chain_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, investigationID, eventType, action, status, actor, source, string(detailJSON), now, nullIfEmpty(prev), chain)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

// ListAuditLogs 返回调查审计日志（按时间升序）。
func (s *Store) ListAuditLogs(ctx context.Context, investigationID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			event_id,
			investigation_id,
			event_type,
			action,
			status,
			COALESCE(actor, ''),
			COALESCE(source, ''),
			COALESCE(detail_json, '{}'),
			occurred_at,
			COALESCE(chain_prev_hash, ''),
			chain_hash
		FROM audit_logs
		WHERE investigation_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`, investigationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var item model.AuditLog
		var detail string
		if err := rows.Scan(
			&item.EventID,
			&item.InvestigationID,
			&item.EventType,
			&item.Action,
			&item.Status,
			&item.Actor,
			&item.Source,
			&detail,
			&item.OccurredAt,
			&item.ChainPrevHash,
			&item.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		item.DetailJSON = json.RawMessage(detail)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	if out == nil {
		out = []model.AuditLog{}
	}
	return out, nil
}

// 空字符串按 NULL 写入，避免无意义空值污染查询条件。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// 零时间戳按 NULL 写入。
func nullIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
