package service

import (
	"context"
	"errors"
	"testing"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/models"
)

func TestItemEnsureIsIdempotent(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	id1, err := env.cat.Items.Ensure(ctx, env.repo.ID, "/src/main.c", "1.4", models.ItemFile)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := env.cat.Items.Ensure(ctx, env.repo.ID, "/src/main.c", "1.4", models.ItemFile)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("ensure returned %d then %d", id1, id2)
	}
	n, err := env.cat.DB().CountRepositoryRows(ctx, "item_revisions", env.repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one item revision row, got %d", n)
	}

	id3, err := env.cat.Items.Ensure(ctx, env.repo.ID, "/src/main.c", "1.4", models.ItemFileDeleted)
	if err != nil {
		t.Fatal(err)
	}
	if id3 != id1 {
		t.Fatalf("kind change created a new row: %d vs %d", id3, id1)
	}
	got, err := env.cat.DB().GetItemRevisionByID(ctx, id1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != models.ItemFileDeleted {
		t.Fatalf("kind not overwritten: %v", got.Kind)
	}
	if names := env.sink.names(); len(names) != 2 || names[0] != "item.insert" || names[1] != "item.update" {
		t.Fatalf("events = %v", names)
	}
	if ev := env.sink.events[1].Payload.(ItemEvent); ev.Previous != models.ItemFile || ev.Item.Kind != models.ItemFileDeleted {
		t.Fatalf("update payload = %+v", ev)
	}

	if _, ok, err := env.cat.Items.FetchID(ctx, env.repo.ID, "/src/other.c", "1.1"); err != nil || ok {
		t.Fatalf("FetchID of unknown item = %v, %v", ok, err)
	}
}

func TestRecordLineageReplacesEdge(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	src, _ := env.cat.Items.Ensure(ctx, env.repo.ID, "/a.txt", "1", models.ItemFile)
	dst, _ := env.cat.Items.Ensure(ctx, env.repo.ID, "/a.txt", "2", models.ItemFile)
	if err := env.cat.Items.RecordLineage(ctx, dst, src, models.ActionModified, &models.LineChanges{Added: 1}); err != nil {
		t.Fatal(err)
	}
	if err := env.cat.Items.RecordLineage(ctx, dst, src, models.ActionMoved, &models.LineChanges{Added: 3, Removed: 2}); err != nil {
		t.Fatal(err)
	}
	edges, err := env.cat.DB().SourceEdges(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected one edge, got %d", len(edges))
	}
	if edges[0].Action != models.ActionMoved || edges[0].LineChanges == nil || edges[0].LineChanges.Removed != 2 {
		t.Fatalf("edge not replaced: %+v", edges[0])
	}
}

func TestSanitizeItem(t *testing.T) {
	a := &models.Item{Path: "/x", Revision: "1"}
	b := &models.Item{Path: "/y", Revision: "1"}

	added := file("/z", "2", models.ActionAdded, a)
	if w := sanitizeItem(added); len(w) != 1 || len(added.SourceItems) != 0 {
		t.Fatalf("added: warnings=%v sources=%d", w, len(added.SourceItems))
	}

	modified := file("/z", "2", models.ActionModified, a, b)
	if w := sanitizeItem(modified); len(w) != 1 || len(modified.SourceItems) != 1 || modified.SourceItems[0] != a {
		t.Fatalf("modified: warnings=%v sources=%v", w, modified.SourceItems)
	}

	deleted := file("/z", "2", models.ActionDeleted, a)
	if w := sanitizeItem(deleted); len(w) != 0 || deleted.Kind != models.ItemFileDeleted {
		t.Fatalf("deleted: warnings=%v kind=%v", w, deleted.Kind)
	}

	merged := file("/z", "2", models.ActionMerged)
	if w := sanitizeItem(merged); len(w) != 1 || w[0].Reason != "missing_source" {
		t.Fatalf("merged without sources: %v", w)
	}
}

func TestHistoryPicksHighestPrioritySuccessor(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	repo := env.repo.ID

	origin, _ := env.cat.Items.Ensure(ctx, repo, "/lib.go", "r1", models.ItemFile)
	seed, _ := env.cat.Items.Ensure(ctx, repo, "/lib.go", "r2", models.ItemFile)
	copied, _ := env.cat.Items.Ensure(ctx, repo, "/lib_copy.go", "r3", models.ItemFile)
	modified, _ := env.cat.Items.Ensure(ctx, repo, "/lib.go", "r4", models.ItemFile)

	for _, e := range []struct {
		target, source int64
		action         models.Action
	}{
		{origin, 0, models.ActionAdded},
		{seed, origin, models.ActionModified},
		{copied, seed, models.ActionCopied},
		{modified, seed, models.ActionModified},
	} {
		if err := env.cat.Items.RecordLineage(ctx, e.target, e.source, e.action, nil); err != nil {
			t.Fatal(err)
		}
	}

	item := &models.Item{RepoID: repo, Path: "/lib.go", Revision: "r2", Kind: models.ItemFile}
	history, err := env.cat.Items.History(ctx, item, HistoryLimits{})
	if err != nil {
		t.Fatal(err)
	}
	var revisions []string
	for _, it := range history {
		revisions = append(revisions, it.Revision)
	}
	want := []string{"r4", "r2", "r1"}
	if len(revisions) != len(want) {
		t.Fatalf("history = %v, want %v", revisions, want)
	}
	for i := range want {
		if revisions[i] != want[i] {
			t.Fatalf("history = %v, want %v", revisions, want)
		}
	}

	limited, err := env.cat.Items.History(ctx, item, HistoryLimits{Successors: Limit(-1), Sources: Limit(1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].Revision != "r2" || limited[1].Revision != "r1" {
		t.Fatalf("limited history has %d entries", len(limited))
	}
}

func TestHistoryOfUnknownItemIsNil(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	for _, it := range []*models.Item{
		{RepoID: env.repo.ID, Path: "/nowhere", Revision: "r9"},
		{RepoID: env.repo.ID, Path: "/unversioned"},
	} {
		history, err := env.cat.Items.History(ctx, it, HistoryLimits{})
		if err != nil || history != nil {
			t.Fatalf("History(%s) = %v, %v", it.Path, history, err)
		}
	}
}

func TestHistoryDetectsCycles(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	a, _ := env.cat.Items.Ensure(ctx, env.repo.ID, "/loop", "1", models.ItemFile)
	b, _ := env.cat.Items.Ensure(ctx, env.repo.ID, "/loop", "2", models.ItemFile)
	env.cat.Items.RecordLineage(ctx, b, a, models.ActionModified, nil)
	env.cat.Items.RecordLineage(ctx, a, b, models.ActionModified, nil)

	_, err := env.cat.Items.History(ctx, &models.Item{RepoID: env.repo.ID, Path: "/loop", Revision: "1"}, HistoryLimits{})
	if !errors.Is(err, ErrLineageCycle) {
		t.Fatalf("expected ErrLineageCycle, got %v", err)
	}
}

func TestParentItem(t *testing.T) {
	env := newTestEnv(t, Options{})
	item := &models.Item{ID: 7, RepoID: env.repo.ID, Path: "/src/pkg/a.go", Revision: "r5", Kind: models.ItemFile}

	parent := env.cat.Items.ParentItem(env.repo, item, "")
	if parent.Path != "/src/pkg" || !parent.IsDirectory() || parent.Revision != "" {
		t.Fatalf("unexpected parent %+v", parent)
	}
	src, ok := parent.SelectedLabel().Source()
	if !ok || src.Kind != models.LabelFromOtherItem || src.Tags[0] != models.TagSameRevision {
		t.Fatalf("parent label recipe = %+v", src)
	}

	if up := env.cat.Items.ParentItem(env.repo, item, "/src"); up == nil || up.Path != "/src" {
		t.Fatalf("ancestor lookup failed: %+v", up)
	}
	if same := env.cat.Items.ParentItem(env.repo, item, item.Path); same != item {
		t.Fatal("item should be its own parent at its own path")
	}
	if got := env.cat.Items.ParentItem(env.repo, item, "/sr"); got != nil {
		t.Fatalf("non-ancestor path returned %+v", got)
	}
}

func TestParentItemKeepsRevisionWithDirectoryRevisions(t *testing.T) {
	reg, err := backend.NewRegistry(&fakeBackend{vcs: "git", capabilities: backend.DirectoryRevisions})
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, Options{Backends: reg})
	item := &models.Item{RepoID: env.repo.ID, Path: "/doc/README", Revision: "42", Kind: models.ItemFile}
	if parent := env.cat.Items.ParentItem(env.repo, item, ""); parent.Revision != "42" {
		t.Fatalf("parent revision = %q", parent.Revision)
	}
}

func TestHistoryFollowsSamePathSourceOfMerge(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	repo := env.repo.ID

	branch, _ := env.cat.Items.Ensure(ctx, repo, "/branch/x.c", "b1", models.ItemFile)
	trunk, _ := env.cat.Items.Ensure(ctx, repo, "/trunk/x.c", "t1", models.ItemFile)
	merged, _ := env.cat.Items.Ensure(ctx, repo, "/trunk/x.c", "t2", models.ItemFile)
	for _, src := range []int64{branch, trunk} {
		if err := env.cat.Items.RecordLineage(ctx, merged, src, models.ActionMerged, nil); err != nil {
			t.Fatal(err)
		}
	}

	item := &models.Item{RepoID: repo, Path: "/trunk/x.c", Revision: "t2", Kind: models.ItemFile}
	history, err := env.cat.Items.History(ctx, item, HistoryLimits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[1].Path != "/trunk/x.c" || history[1].Revision != "t1" {
		var got []string
		for _, it := range history {
			got = append(got, it.Path+"@"+it.Revision)
		}
		t.Fatalf("history = %v", got)
	}
}

func TestHistoryRejectsRepeatedRevision(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	src, _ := env.cat.Items.Ensure(ctx, env.repo.ID, "/old.txt", "5", models.ItemFile)
	dst, _ := env.cat.Items.Ensure(ctx, env.repo.ID, "/new.txt", "5", models.ItemFile)
	if err := env.cat.Items.RecordLineage(ctx, dst, src, models.ActionCopied, nil); err != nil {
		t.Fatal(err)
	}

	_, err := env.cat.Items.History(ctx, &models.Item{RepoID: env.repo.ID, Path: "/new.txt", Revision: "5"}, HistoryLimits{})
	if !errors.Is(err, ErrHistoryCollision) {
		t.Fatalf("expected ErrHistoryCollision, got %v", err)
	}
}

func TestSourceWithoutKindKeepsStoredKind(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	env.commit(t, "r1", 0, "alice", file("/a", "r1", models.ActionAdded))
	env.sink.events = nil
	env.commit(t, "r2", 1, "alice", file("/a", "r2", models.ActionModified, &models.Item{Path: "/a", Revision: "r1"}))

	got, err := env.cat.DB().GetItemRevision(ctx, env.repo.ID, "/a", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != models.ItemFile {
		t.Fatalf("stored kind = %v", got.Kind)
	}
	for _, n := range env.sink.names() {
		if n == "item.update" {
			t.Fatalf("kindless source reported as a change: %v", env.sink.names())
		}
	}

	op := &models.Operation{RepoID: env.repo.ID, Kind: models.OperationCommit, Committer: "alice", Revision: "r3", Message: "m"}
	_, err = env.cat.Operations.Insert(ctx, op, []*models.Item{{Path: "/b", Revision: "r3", Action: models.ActionAdded}})
	if !errors.Is(err, ErrItemKind) {
		t.Fatalf("expected ErrItemKind, got %v", err)
	}
	if n, _ := env.cat.DB().CountRepositoryRows(ctx, "operations", env.repo.ID); n != 2 {
		t.Fatalf("operations = %d after rejected insert", n)
	}
}
