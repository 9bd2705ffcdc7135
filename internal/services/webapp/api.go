package webapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
	"iris-osint/internal/services/analysis"
	"iris-osint/internal/services/auditverify"
	"iris-osint/internal/services/investigation"
	"iris-osint/internal/services/report"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeEnvelopeData(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "iris-osint",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleCreateInvestigation(w http.ResponseWriter, r *http.Request) {
	var req investigation.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := s.investigations.Create(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusCreated, inv)
}

func (s *Server) handleListInvestigations(w http.ResponseWriter, r *http.Request) {
	rows, err := s.investigations.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, map[string]any{"investigations": rows, "total": len(rows)})
}

func (s *Server) handleGetInvestigation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.investigations.Get(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, inv)
}

func (s *Server) handleDeleteInvestigation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.investigations.Delete(r.Context(), actorFrom(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.InvestigationStatus `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := s.investigations.UpdateStatus(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, inv)
}

func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string                `json:"actor_id"`
		Level   model.PermissionLevel `json:"level"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	grant, err := s.perms.Grant(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.ActorID, req.Level)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusCreated, grant)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 0)
	logs, err := s.investigations.AuditTrail(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, map[string]any{"audit_trail": logs, "total": len(logs)})
}

// handleVerifyAudit 对调查审计链做强校验（读权限即可，不改写任何数据）。
func (s *Server) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	logs, err := s.investigations.AuditTrail(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, auditverify.VerifyAuditLogs(logs))
}

func (s *Server) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	var req investigation.AddEvidenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ev, err := s.investigations.AddEvidence(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusCreated, ev)
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	rows, err := s.investigations.ListEvidence(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, map[string]any{"evidence": rows, "total": len(rows)})
}

func (s *Server) handleVerifyEvidence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ev, err := s.investigations.VerifyEvidence(r.Context(), actorFrom(r.Context()), vars["id"], vars["evidenceID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvidence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.investigations.DeleteEvidence(r.Context(), actorFrom(r.Context()), vars["id"], vars["evidenceID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, map[string]any{"deleted": vars["evidenceID"]})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	rows, err := s.analysis.ListRuns(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, map[string]any{"runs": rows, "total": len(rows)})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if !decodeBody(w, r, &req) {
		return
	}
	summary, err := s.analysis.Analyze(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, summary)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.analysis.GetRun(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, run)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	if !decodeBody(w, r, &req) {
		return
	}
	rep, err := s.reports.Generate(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusCreated, rep)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.List(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, map[string]any{"reports": rows, "total": len(rows)})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Get(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusOK, rep)
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	rep, rc, err := s.reports.Download(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	ext := string(rep.Format)
	if rep.Format == model.ReportBundle {
		ext = "zip"
	}
	w.Header().Set("Content-Type", contentTypeFor(rep.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.ID+"."+ext))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("stream report artifact", "report_id", rep.ID, "error", err)
	}
}

func (s *Server) handlePreviewReport(w http.ResponseWriter, r *http.Request) {
	rep, content, err := s.reports.Preview(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(rep.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) handleExportBundle(w http.ResponseWriter, r *http.Request) {
	rep, err := s.exporter.Export(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeEnvelopeData(w, http.StatusCreated, rep)
}

func contentTypeFor(format model.ReportFormat) string {
	switch format {
	case model.ReportJSON:
		return "application/json; charset=utf-8"
	case model.ReportHTML:
		return "text/html; charset=utf-8"
	case model.ReportPDF:
		return "application/pdf"
	case model.ReportBundle:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// decodeBody 解析 JSON 请求体；失败时已写出 400 响应。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeEnvelopeError(w, http.StatusBadRequest, string(apperr.CodeValidation), "invalid json body: "+err.Error())
		return false
	}
	return true
}

func parseIntQuery(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeEnvelopeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeEnvelopeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError 将业务错误映射到 HTTP 信封。
// 非 apperr 错误一律按 500 处理，不向客户端泄露内部细节。
func writeServiceError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		writeEnvelopeError(w, e.HTTPStatus(), string(e.Code), e.Message)
		return
	}
	writeEnvelopeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
