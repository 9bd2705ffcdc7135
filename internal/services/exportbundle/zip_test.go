package exportbundle

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"iris-osint/internal/adapters/blob"
	"iris-osint/internal/adapters/store/sqlite"
	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
	"iris-osint/internal/platform/id"
	"iris-osint/internal/platform/logging"
	"iris-osint/internal/services/permission"
	"iris-osint/internal/services/report"
)

var analyst = model.Actor{ID: "analyst_1", Role: model.RoleInvestigator}

func newTestExporter(t *testing.T) (*Exporter, *report.Pipeline, *sqlite.Store) {
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
	perms := permission.NewEngine(store)
	log := logging.Discard()
	return NewExporter(store, sink, perms, log), report.NewPipeline(store, sink, perms, log), store
}

func seedInvestigation(t *testing.T, store *sqlite.Store) model.Investigation {
	t.Helper()

	now := time.Now().Unix()
	inv := model.Investigation{
		ID:          id.New("inv"),
		Name:        "export test",
		TargetType:  "domain",
		TargetValue: "evil.example",
		Status:      model.StatusActive,
		Priority:    model.PriorityMedium,
		CreatedBy:   analyst.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateInvestigation(context.Background(), inv); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.InsertEvidence(context.Background(), model.Evidence{
		ID:              id.New("ev"),
		InvestigationID: inv.ID,
		Type:            model.EvidenceText,
		Title:           "note",
		Content:         "observed phishing kit",
		ConfidenceScore: 60,
		CreatedBy:       analyst.ID,
		CreatedAt:       now,
	}); err != nil {
		t.Fatalf("seed evidence: %v", err)
	}
	return inv
}

func TestExportBundleContainsManifestAndReports(t *testing.T) {
	e, pipeline, store := newTestExporter(t)
	ctx := context.Background()

	inv := seedInvestigation(t, store)
	jsonRep, err := pipeline.Generate(ctx, analyst, report.Request{InvestigationID: inv.ID, Format: model.ReportJSON})
	if err != nil {
		t.Fatalf("generate json report: %v", err)
	}

	bundle, err := e.Export(ctx, analyst, inv.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bundle.Format != model.ReportBundle || bundle.CertificationLevel != model.CertForensic {
		t.Fatalf("unexpected bundle row: %+v", bundle)
	}

	// 读回 ZIP 并检查内容。
	rc, err := e.blob.Open(bundle.BlobKey)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}

	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	for _, want := range []string{"manifest.json", "hashes.sha256", "reports/" + jsonRep.ID + ".json"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("bundle missing %s (has %v)", want, keys(names))
		}
	}

	mf, _ := names["manifest.json"].Open()
	defer mf.Close()
	var manifest Manifest
	if err := json.NewDecoder(mf).Decode(&manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Schema != manifestSchemaV1 {
		t.Fatalf("unexpected schema: %s", manifest.Schema)
	}
	if manifest.Investigation.ID != inv.ID || len(manifest.Evidence) != 1 {
		t.Fatalf("unexpected manifest payload: %+v", manifest.Stats)
	}
	if len(manifest.Files) != 1 || manifest.Files[0].SHA256 != jsonRep.SHA256 {
		t.Fatalf("manifest file hashes wrong: %+v", manifest.Files)
	}
}

func keys(m map[string]*zip.File) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestExportSkipsNestedBundles(t *testing.T) {
	e, _, store := newTestExporter(t)
	ctx := context.Background()

	inv := seedInvestigation(t, store)
	first, err := e.Export(ctx, analyst, inv.ID)
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	second, err := e.Export(ctx, analyst, inv.ID)
	if err != nil {
		t.Fatalf("second export: %v", err)
	}

	rc, err := e.blob.Open(second.BlobKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	for _, f := range zr.File {
		if f.Name == "reports/"+first.ID+".bundle" {
			t.Fatal("bundle must not contain nested bundles")
		}
	}
}

func TestExportRequiresRead(t *testing.T) {
	e, _, store := newTestExporter(t)
	ctx := context.Background()

	inv := seedInvestigation(t, store)
	stranger := model.Actor{ID: "stranger", Role: model.RoleInvestigator}
	_, err := e.Export(ctx, stranger, inv.ID)
	if !apperr.Is(err, apperr.CodeAuthorization) {
		t.Fatalf("expected AUTHORIZATION_ERROR, got %v", err)
	}
	_, err = e.Export(ctx, analyst, "inv_missing")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
