package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/models"
)

// LabelStore keeps one row per (repository, name, kind).
type LabelStore struct {
	c *Catalog
}

// LabelConstraints filters Find. A nil slice does not filter; a non-nil
// empty slice matches nothing.
type LabelConstraints struct {
	IDs          []int64
	Kind         *models.LabelKind
	NamePatterns []string
}

// Ensure returns the id of the label, creating it on first reference.
func (s *LabelStore) Ensure(ctx context.Context, repoID int64, name string, kind models.LabelKind) (int64, error) {
	l := &models.Label{RepoID: repoID, Name: name, Kind: kind}
	if err := s.ensure(ctx, s.c.db.Queries, l); err != nil {
		return 0, err
	}
	return l.ID, nil
}

func (s *LabelStore) ensure(ctx context.Context, q *database.Queries, l *models.Label) error {
	existing, err := q.GetLabel(ctx, l.RepoID, l.Name, l.Kind)
	if err == nil {
		l.ID = existing.ID
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storageErr("lookup label", err)
	}
	return storageErr("create label", q.CreateLabel(ctx, l))
}

// Find lists labels of a repository. Name patterns use LIKE wildcards.
func (s *LabelStore) Find(ctx context.Context, repoID int64, lc LabelConstraints) ([]models.Label, error) {
	if (lc.IDs != nil && len(lc.IDs) == 0) || (lc.NamePatterns != nil && len(lc.NamePatterns) == 0) {
		return nil, nil
	}
	labels, err := s.c.db.ListLabels(ctx, database.LabelFilter{
		RepoID:       repoID,
		IDs:          lc.IDs,
		Kind:         lc.Kind,
		NamePatterns: lc.NamePatterns,
	})
	if err != nil {
		return nil, storageErr("list labels", err)
	}
	return labels, nil
}
