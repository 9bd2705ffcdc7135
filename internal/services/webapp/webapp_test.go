package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"iris-osint/internal/adapters/blob"
	"iris-osint/internal/adapters/store/sqlite"
	"iris-osint/internal/platform/logging"
	"iris-osint/internal/services/analysis"
	"iris-osint/internal/services/analyzer"
	"iris-osint/internal/services/exportbundle"
	"iris-osint/internal/services/investigation"
	"iris-osint/internal/services/permission"
	"iris-osint/internal/services/report"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	db, err := sqlite.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.NewMigrator(db).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sink, err := blob.NewSink(filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	store := sqlite.NewStore(db)
	log := logging.Discard()
	perms := permission.NewEngine(store)
	srv := NewServer(
		investigation.NewService(store, perms, log),
		perms,
		analysis.NewOrchestrator(store, analyzer.Default(), perms, log),
		report.NewPipeline(store, sink, perms, log),
		exportbundle.NewExporter(store, sink, perms, log),
		log,
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, actorID string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func TestHealthNeedsNoActor(t *testing.T) {
	ts := newTestServer(t)
	status, env := doRequest(t, ts, http.MethodGet, "/api/health", "", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("health failed: %d %+v", status, env)
	}
}

func TestMissingActorHeaderIsRejected(t *testing.T) {
	ts := newTestServer(t)
	status, env := doRequest(t, ts, http.MethodGet, "/api/investigations", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if env.Success || env.Error == nil || env.Error.Code != "AUTHORIZATION_ERROR" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestInvestigationLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	status, env := doRequest(t, ts, http.MethodPost, "/api/investigations", "alice", map[string]any{
		"name":         "phishing ring",
		"target_type":  "email",
		"target_value": "scam@example.com",
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("create failed: %d %+v", status, env)
	}
	var inv struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &inv); err != nil || inv.ID == "" {
		t.Fatalf("bad create payload: %s", env.Data)
	}

	// 证据追加 + 列表
	status, env = doRequest(t, ts, http.MethodPost, "/api/investigations/"+inv.ID+"/evidence", "alice", map[string]any{
		"type":             "text",
		"title":            "victim report",
		"content":          "received phishing email",
		"confidence_score": 70,
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("add evidence failed: %d %+v", status, env)
	}
	status, env = doRequest(t, ts, http.MethodGet, "/api/investigations/"+inv.ID+"/evidence", "alice", nil)
	if status != http.StatusOK {
		t.Fatalf("list evidence failed: %d", status)
	}
	var evList struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &evList); err != nil || evList.Total != 1 {
		t.Fatalf("expected 1 evidence item: %s", env.Data)
	}

	// 无授权的外人被拒
	status, env = doRequest(t, ts, http.MethodGet, "/api/investigations/"+inv.ID, "mallory", nil)
	if status != http.StatusForbidden || env.Error == nil || env.Error.Code != "AUTHORIZATION_ERROR" {
		t.Fatalf("expected 403 for stranger: %d %+v", status, env)
	}

	// read 授权后可见
	status, _ = doRequest(t, ts, http.MethodPost, "/api/investigations/"+inv.ID+"/permissions", "alice", map[string]any{
		"actor_id": "mallory",
		"level":    "read",
	})
	if status != http.StatusCreated {
		t.Fatalf("grant failed: %d", status)
	}
	status, _ = doRequest(t, ts, http.MethodGet, "/api/investigations/"+inv.ID, "mallory", nil)
	if status != http.StatusOK {
		t.Fatalf("grantee read failed: %d", status)
	}

	// 审计链校验
	status, env = doRequest(t, ts, http.MethodPost, "/api/investigations/"+inv.ID+"/audit/verify", "alice", nil)
	if status != http.StatusOK {
		t.Fatalf("verify audit failed: %d", status)
	}
	var verify struct {
		OK    bool `json:"ok"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &verify); err != nil || !verify.OK || verify.Total == 0 {
		t.Fatalf("audit chain must verify: %s", env.Data)
	}
}

func TestAnalyzeAndReportOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	_, env := doRequest(t, ts, http.MethodPost, "/api/investigations", "alice", map[string]any{
		"name":         "ip probe",
		"target_type":  "ip",
		"target_value": "8.8.8.8",
	})
	var inv struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &inv); err != nil {
		t.Fatalf("create payload: %v", err)
	}

	status, env := doRequest(t, ts, http.MethodPost, "/api/osint/analyze", "alice", map[string]any{
		"target":           "8.8.8.8",
		"type":             "ip",
		"investigation_id": inv.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("analyze failed: %d %+v", status, env)
	}
	var summary struct {
		Success bool   `json:"success"`
		RunID   string `json:"run_id"`
		Total   int    `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &summary); err != nil || !summary.Success || summary.Total == 0 {
		t.Fatalf("bad analyze summary: %s", env.Data)
	}

	status, _ = doRequest(t, ts, http.MethodGet, "/api/osint/runs/"+summary.RunID, "alice", nil)
	if status != http.StatusOK {
		t.Fatalf("get run failed: %d", status)
	}

	status, env = doRequest(t, ts, http.MethodPost, "/api/reports/generate", "alice", map[string]any{
		"investigation_id":    inv.ID,
		"format":              "json",
		"certification_level": "forensic",
	})
	if status != http.StatusCreated {
		t.Fatalf("generate report failed: %d %+v", status, env)
	}
	var rep struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &rep); err != nil || rep.ID == "" {
		t.Fatalf("report payload: %s", env.Data)
	}

	// preview 返回原始 JSON 产物（非信封）
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/reports/"+rep.ID+"/preview", nil)
	req.Header.Set("X-Actor-Id", "alice")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview status: %d", resp.StatusCode)
	}
	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("preview is not json: %v", err)
	}
	if _, ok := raw["certification"]; !ok {
		t.Fatal("preview missing certification block")
	}

	// 导出认证包
	status, _ = doRequest(t, ts, http.MethodPost, "/api/investigations/"+inv.ID+"/export", "alice", nil)
	if status != http.StatusCreated {
		t.Fatalf("export failed: %d", status)
	}
}

func TestValidationErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	status, env := doRequest(t, ts, http.MethodPost, "/api/investigations", "alice", map[string]any{
		"name": "",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if env.Success || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
