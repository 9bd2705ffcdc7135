package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/id"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := NewMigrator(db).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func seedInvestigation(t *testing.T, s *Store, createdBy string) model.Investigation {
	t.Helper()

	now := time.Now().Unix()
	inv := model.Investigation{
		ID:          id.New("inv"),
		Name:        "fraud ring",
		Description: "romance scam cluster",
		TargetType:  "email",
		TargetValue: "scammer@example.com",
		Status:      model.StatusPending,
		Priority:    model.PriorityHigh,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateInvestigation(context.Background(), inv); err != nil {
		t.Fatalf("create investigation: %v", err)
	}
	return inv
}

func TestInvestigationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")

	got, err := s.GetInvestigation(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected investigation, got nil")
	}
	if got.Name != inv.Name || got.Status != model.StatusPending || got.Priority != model.PriorityHigh {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.StartedAt != 0 || got.CompletedAt != 0 {
		t.Fatalf("expected zero lifecycle timestamps, got %+v", got)
	}

	missing, err := s.GetInvestigation(ctx, "inv_missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing id, got %+v", missing)
	}
}

func TestUpdateStatusSetsLifecycleTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")

	ok, err := s.UpdateInvestigationStatus(ctx, inv.ID, model.StatusActive)
	if err != nil || !ok {
		t.Fatalf("activate: ok=%v err=%v", ok, err)
	}
	got, _ := s.GetInvestigation(ctx, inv.ID)
	if got.StartedAt == 0 {
		t.Fatal("expected started_at after activation")
	}
	if got.CompletedAt != 0 {
		t.Fatal("completed_at must stay empty until completion")
	}

	ok, err = s.UpdateInvestigationStatus(ctx, inv.ID, model.StatusCompleted)
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	got, _ = s.GetInvestigation(ctx, inv.ID)
	if got.CompletedAt == 0 {
		t.Fatal("expected completed_at after completion")
	}

	ok, err = s.UpdateInvestigationStatus(ctx, "inv_missing", model.StatusActive)
	if err != nil {
		t.Fatalf("missing update: %v", err)
	}
	if ok {
		t.Fatal("expected no rows for missing investigation")
	}
}

func TestDeleteInvestigationCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")
	now := time.Now().Unix()

	err := s.InsertEvidence(ctx, model.Evidence{
		ID:              id.New("ev"),
		InvestigationID: inv.ID,
		Type:            model.EvidenceText,
		Title:           "chat log",
		Content:         "hello",
		ConfidenceScore: 80,
		CreatedBy:       "analyst_1",
		CreatedAt:       now,
	})
	if err != nil {
		t.Fatalf("insert evidence: %v", err)
	}
	if err := s.AppendAudit(ctx, inv.ID, "investigation", "create", "success", "analyst_1", "test", nil); err != nil {
		t.Fatalf("append audit: %v", err)
	}

	ok, err := s.DeleteInvestigation(ctx, inv.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	n, err := s.CountEvidence(ctx, inv.ID)
	if err != nil {
		t.Fatalf("count evidence: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected cascade delete of evidence, got %d rows", n)
	}
	logs, err := s.ListAuditLogs(ctx, inv.ID, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected cascade delete of audit logs, got %d rows", len(logs))
	}
}

func TestListInvestigationsForActorIncludesGrants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mine := seedInvestigation(t, s, "analyst_1")
	shared := seedInvestigation(t, s, "analyst_2")
	seedInvestigation(t, s, "analyst_3") // 不可见

	err := s.UpsertPermission(ctx, model.PermissionGrant{
		ID:              id.New("perm"),
		InvestigationID: shared.ID,
		ActorID:         "analyst_1",
		Level:           model.LevelRead,
		GrantedBy:       "analyst_2",
		GrantedAt:       time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	list, err := s.ListInvestigationsForActor(ctx, "analyst_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 visible investigations, got %d", len(list))
	}
	seen := map[string]bool{}
	for _, inv := range list {
		seen[inv.ID] = true
	}
	if !seen[mine.ID] || !seen[shared.ID] {
		t.Fatalf("unexpected visible set: %+v", seen)
	}
}

func TestUpsertPermissionOverwritesLevel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")
	grant := model.PermissionGrant{
		ID:              id.New("perm"),
		InvestigationID: inv.ID,
		ActorID:         "analyst_2",
		Level:           model.LevelRead,
		GrantedBy:       "analyst_1",
		GrantedAt:       time.Now().Unix(),
	}
	if err := s.UpsertPermission(ctx, grant); err != nil {
		t.Fatalf("first grant: %v", err)
	}

	grant.ID = id.New("perm")
	grant.Level = model.LevelAdmin
	if err := s.UpsertPermission(ctx, grant); err != nil {
		t.Fatalf("second grant: %v", err)
	}

	got, err := s.GetPermission(ctx, inv.ID, "analyst_2")
	if err != nil {
		t.Fatalf("get permission: %v", err)
	}
	if got == nil || got.Level != model.LevelAdmin {
		t.Fatalf("expected admin after overwrite, got %+v", got)
	}
}

func TestMarkEvidenceVerifiedOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")
	ev := model.Evidence{
		ID:              id.New("ev"),
		InvestigationID: inv.ID,
		Type:            model.EvidenceScreenshot,
		Title:           "profile capture",
		ConfidenceScore: 90,
		CreatedBy:       "analyst_1",
		CreatedAt:       time.Now().Unix(),
	}
	if err := s.InsertEvidence(ctx, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err := s.MarkEvidenceVerified(ctx, inv.ID, ev.ID, "analyst_2", time.Now().Unix())
	if err != nil || !ok {
		t.Fatalf("first verify: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkEvidenceVerified(ctx, inv.ID, ev.ID, "analyst_3", time.Now().Unix())
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if ok {
		t.Fatal("verified evidence must not be re-verifiable")
	}

	got, err := s.GetEvidenceByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Verified || got.VerifiedBy != "analyst_2" {
		t.Fatalf("unexpected verification state: %+v", got)
	}
	if got.RecordHash == "" {
		t.Fatal("record_hash must be filled on insert")
	}
}

func TestConcurrentEvidenceInserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InsertEvidence(ctx, model.Evidence{
				ID:              id.New("ev"),
				InvestigationID: inv.ID,
				Type:            model.EvidenceText,
				Title:           "concurrent note",
				ConfidenceScore: 50,
				CreatedBy:       "analyst_1",
				CreatedAt:       time.Now().Unix(),
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent insert: %v", err)
		}
	}

	n, err := s.CountEvidence(ctx, inv.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 20 {
		t.Fatalf("expected 20 evidence rows, got %d", n)
	}
}

func TestAnalysisRunTransitionsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := model.AnalysisRun{
		ID:         id.New("run"),
		Target:     "8.8.8.8",
		TargetType: model.TargetIP,
		CreatedBy:  "analyst_1",
		StartedAt:  time.Now().Unix(),
	}
	if err := s.InsertAnalysisRun(ctx, run); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.CompleteAnalysisRun(ctx, run.ID, `[{"tool":"IP Geolocation","success":true,"confidence":90}]`, time.Now().Unix(), 120); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// completed 后不允许再次流转。
	if err := s.FailAnalysisRun(ctx, run.ID, "late failure", time.Now().Unix()); err == nil {
		t.Fatal("expected error when failing a completed run")
	}
	if err := s.CompleteAnalysisRun(ctx, run.ID, `[]`, time.Now().Unix(), 1); err == nil {
		t.Fatal("expected error when completing twice")
	}

	got, err := s.GetAnalysisRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.RunCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if len(got.Results) != 1 || got.Results[0].Tool != "IP Geolocation" {
		t.Fatalf("unexpected results: %+v", got.Results)
	}
	if got.InvestigationID != "" {
		t.Fatalf("detached run must keep empty investigation id, got %q", got.InvestigationID)
	}
}

func TestListStuckRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := model.AnalysisRun{
		ID:         id.New("run"),
		Target:     "ghost",
		TargetType: model.TargetUsername,
		CreatedBy:  "analyst_1",
		StartedAt:  time.Now().Add(-2 * time.Hour).Unix(),
	}
	fresh := model.AnalysisRun{
		ID:         id.New("run"),
		Target:     "ghost2",
		TargetType: model.TargetUsername,
		CreatedBy:  "analyst_1",
		StartedAt:  time.Now().Unix(),
	}
	if err := s.InsertAnalysisRun(ctx, old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if err := s.InsertAnalysisRun(ctx, fresh); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	stuck, err := s.ListStuckRuns(ctx, time.Now().Add(-30*time.Minute).Unix())
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != old.ID {
		t.Fatalf("expected only the old run, got %+v", stuck)
	}
}

// 同一秒内连续追加：occurred_at 全部相同，链序必须仍由插入序决定。
func TestAuditChainLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")
	const n = 30
	for i := 0; i < n; i++ {
		if err := s.AppendAudit(ctx, inv.ID, "evidence", "add", "success", "analyst_1", "test", map[string]int{"i": i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	logs, err := s.ListAuditLogs(ctx, inv.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != n {
		t.Fatalf("expected %d logs, got %d", n, len(logs))
	}
	if logs[0].ChainPrevHash != "" {
		t.Fatalf("first log must have empty prev hash, got %q", logs[0].ChainPrevHash)
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].ChainPrevHash != logs[i-1].ChainHash {
			t.Fatalf("chain break at %d: prev=%q want=%q", i, logs[i].ChainPrevHash, logs[i-1].ChainHash)
		}
	}
}

// 并发追加同一调查：每条记录必须链到上一条，不得分叉。
func TestAuditChainConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")
	const n = 30
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AppendAudit(ctx, inv.ID, "evidence", "add", "success", "analyst_1", "test", map[string]int{"i": i})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	logs, err := s.ListAuditLogs(ctx, inv.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != n {
		t.Fatalf("expected %d logs, got %d", n, len(logs))
	}
	if logs[0].ChainPrevHash != "" {
		t.Fatalf("first log must have empty prev hash, got %q", logs[0].ChainPrevHash)
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].ChainPrevHash != logs[i-1].ChainHash {
			t.Fatalf("chain break at %d: prev=%q want=%q", i, logs[i].ChainPrevHash, logs[i-1].ChainHash)
		}
	}
}

func TestReportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvestigation(t, s, "analyst_1")
	first := model.Report{
		ID:                 id.New("report"),
		InvestigationID:    inv.ID,
		Title:              "Investigation Report",
		Format:             model.ReportJSON,
		CertificationLevel: model.CertBasic,
		BlobKey:            "reports/" + inv.ID + "/a.json",
		SHA256:             "aa",
		CertificationKey:   "IRIS-BAS-X-Y",
		GeneratedBy:        "analyst_1",
		GeneratedAt:        time.Now().Unix() - 10,
	}
	second := first
	second.ID = id.New("report")
	second.Format = model.ReportPDF
	second.BlobKey = "reports/" + inv.ID + "/b.pdf"
	second.GeneratedAt = time.Now().Unix()

	if err := s.InsertReport(ctx, first); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if err := s.InsertReport(ctx, second); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	list, err := s.ListReportsByInvestigation(ctx, inv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	latest, err := s.GetLatestReportByInvestigation(ctx, inv.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("unexpected latest: %+v", latest)
	}
}
