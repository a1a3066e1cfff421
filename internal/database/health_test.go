package database

import (
	"context"
	"testing"

	"github.com/marvil07/versioncontrol/internal/models"
)

func TestCatalogStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stats, err := db.CatalogStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Repositories != 0 || stats.Operations != 0 {
		t.Fatalf("empty catalog stats = %+v", stats)
	}

	repo := &models.Repository{Name: "core", VCS: "git"}
	if err := db.CreateRepository(ctx, repo); err != nil {
		t.Fatal(err)
	}
	src := &models.Item{RepoID: repo.ID, Path: "/a", Revision: "1", Kind: models.ItemFile}
	dst := &models.Item{RepoID: repo.ID, Path: "/a", Revision: "2", Kind: models.ItemFile}
	for _, it := range []*models.Item{src, dst} {
		if err := db.CreateItemRevision(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.PutSourceEdge(ctx, SourceEdge{ItemID: dst.ID, SourceID: src.ID, Action: models.ActionModified}); err != nil {
		t.Fatal(err)
	}

	stats, err = db.CatalogStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Repositories != 1 || stats.ItemRevisions != 2 || stats.LineageEdges != 1 {
		t.Fatalf("catalog stats = %+v", stats)
	}
	if stats.Pool.MaxOpenConnections < 0 {
		t.Fatalf("pool stats = %+v", stats.Pool)
	}
}
