// Package webapp 提供平台的 HTTP API。
//
// 身份上下文来自请求头（X-Actor-Id / X-Actor-Role），本层只解析、不认证；
// 认证由前置网关完成。所有响应统一为 {success, data|error} 信封，
// 错误码与 apperr 分类一一对应。
package webapp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"iris-osint/internal/services/analysis"
	"iris-osint/internal/services/exportbundle"
	"iris-osint/internal/services/investigation"
	"iris-osint/internal/services/permission"
	"iris-osint/internal/services/report"
)

// Server 聚合各业务服务并暴露 HTTP 路由。
type Server struct {
	investigations *investigation.Service
	perms          *permission.Engine
	analysis       *analysis.Orchestrator
	reports        *report.Pipeline
	exporter       *exportbundle.Exporter
	log            *slog.Logger
}

func NewServer(
	investigations *investigation.Service,
	perms *permission.Engine,
	analysisOrch *analysis.Orchestrator,
	reports *report.Pipeline,
	exporter *exportbundle.Exporter,
	log *slog.Logger,
) *Server {
	return &Server{
		investigations: investigations,
		perms:          perms,
		analysis:       analysisOrch,
		reports:        reports,
		exporter:       exporter,
		log:            log,
	}
}

// Router 构造完整路由表。
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.recoverMiddleware, s.accessLogMiddleware)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.actorMiddleware)

	api.HandleFunc("/investigations", s.handleCreateInvestigation).Methods(http.MethodPost)
	api.HandleFunc("/investigations", s.handleListInvestigations).Methods(http.MethodGet)
	api.HandleFunc("/investigations/{id}", s.handleGetInvestigation).Methods(http.MethodGet)
	api.HandleFunc("/investigations/{id}", s.handleDeleteInvestigation).Methods(http.MethodDelete)
	api.HandleFunc("/investigations/{id}/status", s.handleUpdateStatus).Methods(http.MethodPut)
	api.HandleFunc("/investigations/{id}/permissions", s.handleGrantPermission).Methods(http.MethodPost)
	api.HandleFunc("/investigations/{id}/audit", s.handleAuditTrail).Methods(http.MethodGet)
	api.HandleFunc("/investigations/{id}/audit/verify", s.handleVerifyAudit).Methods(http.MethodPost)

	api.HandleFunc("/investigations/{id}/evidence", s.handleAddEvidence).Methods(http.MethodPost)
	api.HandleFunc("/investigations/{id}/evidence", s.handleListEvidence).Methods(http.MethodGet)
	api.HandleFunc("/investigations/{id}/evidence/{evidenceID}/verify", s.handleVerifyEvidence).Methods(http.MethodPost)
	api.HandleFunc("/investigations/{id}/evidence/{evidenceID}", s.handleDeleteEvidence).Methods(http.MethodDelete)

	api.HandleFunc("/investigations/{id}/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/investigations/{id}/reports", s.handleListReports).Methods(http.MethodGet)
	api.HandleFunc("/investigations/{id}/export", s.handleExportBundle).Methods(http.MethodPost)

	api.HandleFunc("/osint/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/osint/runs/{id}", s.handleGetRun).Methods(http.MethodGet)

	api.HandleFunc("/reports/generate", s.handleGenerateReport).Methods(http.MethodPost)
	api.HandleFunc("/reports/{id}", s.handleGetReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}/download", s.handleDownloadReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}/preview", s.handlePreviewReport).Methods(http.MethodGet)

	return r
}

// Run 启动 HTTP 服务，ctx 取消后优雅退出。
func (s *Server) Run(ctx context.Context, listenAddr string) error {
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("api listening", "addr", listenAddr)
	err := httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
