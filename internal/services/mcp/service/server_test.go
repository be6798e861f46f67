package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/gamebook/internal/engine/narrator"
	"github.com/louisbranch/gamebook/internal/state"
	"github.com/louisbranch/gamebook/internal/storage/fscache"
)

type stubRunner struct{}

func (stubRunner) RunTurn(_ context.Context, input state.GameState) (state.GameState, error) {
	return input, nil
}

type stubLoader struct{}

func (stubLoader) Section(context.Context, int) (string, error) {
	return "", nil
}

func TestNewRequiresRunnerAndLoader(t *testing.T) {
	if _, err := New(nil, nil, stubLoader{}); err == nil {
		t.Fatal("expected error for missing runner")
	}
	if _, err := New(stubRunner{}, nil, nil); err == nil {
		t.Fatal("expected error for missing section loader")
	}
	if _, err := New(stubRunner{}, nil, stubLoader{}); err != nil {
		t.Fatalf("recorder should be optional: %v", err)
	}
}

func TestBuildRegistersTools(t *testing.T) {
	server, err := New(stubRunner{}, nil, stubLoader{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if _, err := server.build(); err != nil {
		t.Fatalf("build server: %v", err)
	}
}

func newSectionLoader(t *testing.T) (NarratorSectionLoader, string) {
	t.Helper()
	contentDir := t.TempDir()
	store, err := fscache.New(contentDir, t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NarratorSectionLoader{Node: narrator.New(store, nil, nil)}, contentDir
}

func TestNarratorSectionLoader(t *testing.T) {
	loader, contentDir := newSectionLoader(t)

	dir := filepath.Join(contentDir, "sections")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "7.md"), []byte("# The Gate\n\nA rusty gate."), 0o644); err != nil {
		t.Fatalf("write section: %v", err)
	}

	content, err := loader.Section(context.Background(), 7)
	if err != nil {
		t.Fatalf("load section: %v", err)
	}
	if !strings.Contains(content, "The Gate") {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestNarratorSectionLoaderMissingSection(t *testing.T) {
	loader, _ := newSectionLoader(t)

	if _, err := loader.Section(context.Background(), 99); err == nil {
		t.Fatal("expected error for missing section")
	}
}
