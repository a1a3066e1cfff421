package backend

import (
	"context"
	"testing"

	"github.com/marvil07/versioncontrol/internal/models"
)

type plainBackend struct{ vcs string }

func (b plainBackend) VCS() string { return b.vcs }
func (b plainBackend) Info() Info  { return Info{Name: b.vcs} }

type exportingBackend struct{ plainBackend }

func (exportingBackend) Info() Info {
	return Info{Name: "Git", Capabilities: AtomicCommits}
}

func (exportingBackend) ExportFile(context.Context, *models.Repository, *models.Item, string) error {
	return nil
}

func TestRegistryImplements(t *testing.T) {
	r, err := NewRegistry(plainBackend{vcs: "cvs"}, exportingBackend{plainBackend{vcs: "git"}})
	if err != nil {
		t.Fatal(err)
	}
	if r.Implements("cvs", OpExportFile) {
		t.Fatal("cvs backend should not export files")
	}
	if !r.Implements("git", OpExportFile) {
		t.Fatal("git backend should export files")
	}
	if r.Implements("git", OpAnnotate) {
		t.Fatal("git backend should not annotate")
	}
	if !r.Supports("git", AtomicCommits) || r.Supports("git", DirectoryRevisions) {
		t.Fatal("unexpected git capabilities")
	}
	if r.Supports("hg", AtomicCommits) {
		t.Fatal("unknown backend should support nothing")
	}
	if _, ok := As[FileExporter](r, "git"); !ok {
		t.Fatal("expected typed lookup to succeed")
	}
	if _, ok := As[FileExporter](r, "cvs"); ok {
		t.Fatal("expected typed lookup to fail for cvs")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r, err := NewRegistry(plainBackend{vcs: "git"})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(plainBackend{vcs: "git"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := r.Register(plainBackend{}); err == nil {
		t.Fatal("expected empty vcs to fail")
	}
	if got := r.Names(); len(got) != 1 || got[0] != "git" {
		t.Fatalf("unexpected names: %v", got)
	}
}
