package blob

import (
	"io"
	"strings"
	"testing"
)

func TestPutAndOpen(t *testing.T) {
	sink, err := NewSink(t.TempDir())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.Put("reports/inv_1/a.json", strings.NewReader(`{"ok":true}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, err := sink.Open("reports/inv_1/a.json")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", raw)
	}
}

func TestPutRefusesOverwrite(t *testing.T) {
	sink, err := NewSink(t.TempDir())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.Put("reports/a.pdf", strings.NewReader("v1")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := sink.Put("reports/a.pdf", strings.NewReader("v2")); err == nil {
		t.Fatal("expected overwrite to fail")
	}

	rc, _ := sink.Open("reports/a.pdf")
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "v1" {
		t.Fatalf("original bytes must survive, got %s", raw)
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	sink, err := NewSink(t.TempDir())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.Put("../outside.txt", strings.NewReader("x")); err == nil {
		t.Fatal("expected path escape to be rejected")
	}
	if _, err := sink.Open("../../etc/passwd"); err == nil {
		t.Fatal("expected open escape to be rejected")
	}
}
