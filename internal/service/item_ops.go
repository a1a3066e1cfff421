package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/models"
)

// ParentItem returns the directory containing item at the same revision, or
// the directory parentPath further up the tree. The root item is its own
// parent. It returns nil when parentPath is not an ancestor of item.
func (s *ItemStore) ParentItem(repo *models.Repository, item *models.Item, parentPath string) *models.Item {
	var p string
	switch {
	case parentPath == "":
		if item.Path == "/" {
			return item
		}
		p = item.ParentPath()
	case parentPath == item.Path:
		return item
	case parentPath == "/" || strings.HasPrefix(item.Path+"/", strings.TrimSuffix(parentPath, "/")+"/"):
		p = parentPath
	default:
		return nil
	}

	revision := ""
	if s.c.backends.Supports(repo.VCS, backend.DirectoryRevisions) {
		revision = item.Revision
	}
	parent := &models.Item{RepoID: repo.ID, Path: p, Revision: revision, Kind: models.ItemDirectory}
	parent.SelectedLabel().SetSource(models.FromOtherItem(item, models.TagSameRevision))
	return parent
}

// AttachCommitOperations sets CommitOperation on items that lack one. With
// atomic commits the operation is found by revision, otherwise through the
// operation membership of each item.
func (s *ItemStore) AttachCommitOperations(ctx context.Context, repo *models.Repository, items []*models.Item) error {
	var pending []*models.Item
	for _, it := range items {
		if it.CommitOperation == nil {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if s.c.backends.Supports(repo.VCS, backend.AtomicCommits) {
		var revisions []string
		seen := make(map[string]bool)
		for _, it := range pending {
			if it.Revision != "" && !seen[it.Revision] {
				seen[it.Revision] = true
				revisions = append(revisions, it.Revision)
			}
		}
		if len(revisions) == 0 {
			return nil
		}
		ops, err := s.c.Operations.Commits(ctx, constraint.Set{
			constraint.KeyRepoIDs:   []int64{repo.ID},
			constraint.KeyRevisions: revisions,
		}, constraint.All())
		if err != nil {
			return err
		}
		byRevision := make(map[string]*models.Operation, len(ops))
		for i := range ops {
			byRevision[ops[i].Revision] = &ops[i]
		}
		for _, it := range pending {
			if op, ok := byRevision[it.Revision]; ok {
				it.CommitOperation = op
			}
		}
		return nil
	}

	var ids []int64
	for _, it := range pending {
		ok, err := s.resolveID(ctx, it)
		if err != nil {
			return storageErr("resolve item", err)
		}
		if ok {
			ids = append(ids, it.ID)
		}
	}
	byItem, err := s.c.db.OperationsByItem(ctx, models.OperationCommit, ids)
	if err != nil {
		return storageErr("load commit operations", err)
	}
	ops := make(map[int64]*models.Operation, len(byItem))
	var list []*models.Operation
	for _, op := range byItem {
		if _, ok := ops[op.ID]; !ok {
			op := op
			ops[op.ID] = &op
			list = append(list, &op)
		}
	}
	if err := s.c.Operations.attachLabels(ctx, list...); err != nil {
		return err
	}
	for _, it := range pending {
		if op, ok := byItem[it.ID]; ok {
			it.CommitOperation = ops[op.ID]
		}
	}
	return nil
}

// ParallelItems returns the item as it exists on other branches or tags.
func (s *ItemStore) ParallelItems(ctx context.Context, repo *models.Repository, item *models.Item, kind *models.LabelKind) ([]*models.Item, error) {
	finder, ok := backend.As[backend.ParallelItemFinder](s.c.backends, repo.VCS)
	if !ok {
		return nil, fmt.Errorf("parallel items for %s: %w", repo.VCS, ErrUnsupported)
	}
	results, err := finder.ParallelItems(ctx, repo, item, kind)
	if err != nil {
		return nil, err
	}
	items := make([]*models.Item, 0, len(results))
	for _, li := range results {
		items = append(items, adoptLabel(li))
	}
	return items, nil
}

// DirectoryContents lists a directory item. The result is nil for files.
func (s *ItemStore) DirectoryContents(ctx context.Context, repo *models.Repository, dir *models.Item, recursive bool) ([]*models.Item, error) {
	if !dir.IsDirectory() {
		return nil, nil
	}
	lister, ok := backend.As[backend.DirectoryLister](s.c.backends, repo.VCS)
	if !ok {
		return nil, fmt.Errorf("directory contents for %s: %w", repo.VCS, ErrUnsupported)
	}
	results, err := lister.DirectoryContents(ctx, repo, dir, recursive)
	if err != nil {
		return nil, err
	}
	items := make([]*models.Item, 0, len(results))
	for _, li := range results {
		items = append(items, adoptLabel(li))
	}
	return items, nil
}

// ExportFile writes the file's content to a new temporary file and returns
// its path. The caller removes the file.
func (s *ItemStore) ExportFile(ctx context.Context, repo *models.Repository, item *models.Item) (string, error) {
	if !item.IsFile() {
		return "", fmt.Errorf("export %s: not a file", item.Path)
	}
	exporter, ok := backend.As[backend.FileExporter](s.c.backends, repo.VCS)
	if !ok {
		return "", fmt.Errorf("export file for %s: %w", repo.VCS, ErrUnsupported)
	}
	f, err := os.CreateTemp("", "versioncontrol-*-"+path.Base(item.Path))
	if err != nil {
		return "", err
	}
	dst := f.Name()
	f.Close()
	if err := exporter.ExportFile(ctx, repo, item, dst); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// ExportDirectory writes the directory tree to dst, replacing whatever was
// there. dst is removed again when the export fails.
func (s *ItemStore) ExportDirectory(ctx context.Context, repo *models.Repository, item *models.Item, dst string) error {
	if !item.IsDirectory() {
		return fmt.Errorf("export %s: not a directory", item.Path)
	}
	exporter, ok := backend.As[backend.DirectoryExporter](s.c.backends, repo.VCS)
	if !ok {
		return fmt.Errorf("export directory for %s: %w", repo.VCS, ErrUnsupported)
	}
	dst = filepath.Clean(dst)
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := exporter.ExportDirectory(ctx, repo, item, dst); err != nil {
		os.RemoveAll(dst)
		return err
	}
	return nil
}

// FileAnnotation returns the blame view of a file item.
func (s *ItemStore) FileAnnotation(ctx context.Context, repo *models.Repository, item *models.Item) ([]backend.AnnotatedLine, error) {
	if !item.IsFile() {
		return nil, fmt.Errorf("annotate %s: not a file", item.Path)
	}
	annotator, ok := backend.As[backend.Annotator](s.c.backends, repo.VCS)
	if !ok {
		return nil, fmt.Errorf("annotate for %s: %w", repo.VCS, ErrUnsupported)
	}
	return annotator.Annotate(ctx, repo, item)
}
