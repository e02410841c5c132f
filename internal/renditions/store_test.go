package renditions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListRunMissingDir(t *testing.T) {
	s := New(t.TempDir())
	res, err := s.ListRun("nope")
	if err != nil {
		t.Fatalf("missing run dir should not error: %v", err)
	}
	if len(res.Renditions) != 0 {
		t.Fatalf("expected empty listing, got %+v", res.Renditions)
	}
}

func TestListRunSortedWithSizes(t *testing.T) {
	base := t.TempDir()
	s := New(base)
	runDir := s.RunDir("song1-abc123")
	if err := os.MkdirAll(filepath.Join(runDir, "scratch"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "b.mp3"), []byte("12345"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "a.flac"), []byte("123"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := s.ListRun("song1-abc123")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Renditions) != 2 {
		t.Fatalf("expected 2 files (dirs skipped), got %d", len(res.Renditions))
	}
	if res.Renditions[0].Name != "a.flac" || res.Renditions[0].Size != 3 {
		t.Fatalf("unexpected first rendition: %+v", res.Renditions[0])
	}
	if res.Renditions[1].Name != "b.mp3" || res.Renditions[1].Size != 5 {
		t.Fatalf("unexpected second rendition: %+v", res.Renditions[1])
	}
}
