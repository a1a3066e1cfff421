package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/events"
	"github.com/marvil07/versioncontrol/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(_ context.Context, e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Name()
	}
	return out
}

// fakeBackend selects the first operation label for every item and records
// observer calls.
type fakeBackend struct {
	vcs          string
	capabilities backend.Capability

	mu        sync.Mutex
	inserted  []int64
	deleted   []int64
	fromOther []string
}

func (b *fakeBackend) VCS() string { return b.vcs }

func (b *fakeBackend) Info() backend.Info {
	return backend.Info{Name: b.vcs, Description: "test backend", Capabilities: b.capabilities}
}

func (b *fakeBackend) LabelFromOperation(_ context.Context, _ *models.Repository, op *models.Operation, _ *models.Item) (*models.Label, error) {
	if len(op.Labels) == 0 {
		return nil, nil
	}
	l := op.Labels[0]
	return &l, nil
}

func (b *fakeBackend) LabelFromOtherItem(_ context.Context, _ *models.Repository, _, _ *models.Item, otherLabel *models.Label, tags []string) (*models.Label, error) {
	b.mu.Lock()
	b.fromOther = append(b.fromOther, tags...)
	b.mu.Unlock()
	if otherLabel == nil {
		return nil, nil
	}
	l := *otherLabel
	return &l, nil
}

func (b *fakeBackend) OperationInserted(_ context.Context, op *models.Operation, _ []*models.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inserted = append(b.inserted, op.ID)
	return nil
}

func (b *fakeBackend) OperationDeleted(_ context.Context, op *models.Operation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, op.ID)
	return nil
}

type testEnv struct {
	cat     *Catalog
	sink    *recordingSink
	backend *fakeBackend
	repo    *models.Repository
}

func newTestEnv(t testing.TB, opts Options) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	fb := &fakeBackend{vcs: "git", capabilities: backend.AtomicCommits}
	if opts.Backends == nil {
		reg, err := backend.NewRegistry(fb)
		if err != nil {
			t.Fatal(err)
		}
		opts.Backends = reg
	}
	sink := &recordingSink{}
	if opts.Events == nil {
		opts.Events = sink
	}
	cat := New(db, opts)

	repo := &models.Repository{Name: "core", VCS: "git", Root: "/srv/git/core.git"}
	if err := cat.Repositories.Create(context.Background(), repo); err != nil {
		t.Fatal(err)
	}
	sink.events = nil
	return &testEnv{cat: cat, sink: sink, backend: fb, repo: repo}
}

var baseDate = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func (e *testEnv) commit(t *testing.T, revision string, day int, committer string, items ...*models.Item) *models.Operation {
	t.Helper()
	op := &models.Operation{
		RepoID:    e.repo.ID,
		Kind:      models.OperationCommit,
		Committer: committer,
		Date:      baseDate.AddDate(0, 0, day),
		Revision:  revision,
		Message:   "change " + revision,
		Labels:    []models.Label{{Name: "main", Kind: models.LabelBranch, Action: models.ActionModified}},
	}
	if _, err := e.cat.Operations.Insert(context.Background(), op, items); err != nil {
		t.Fatalf("insert %s: %v", revision, err)
	}
	return op
}

func file(path, revision string, action models.Action, sources ...*models.Item) *models.Item {
	return &models.Item{Path: path, Revision: revision, Kind: models.ItemFile, Action: action, SourceItems: sources}
}
