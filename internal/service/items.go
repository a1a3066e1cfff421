package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/events"
	"github.com/marvil07/versioncontrol/internal/models"
)

// ItemStore keeps item revisions and the lineage edges between them.
type ItemStore struct {
	c *Catalog
}

// ItemEvent is the payload of item events. Previous is set when an existing
// revision changed kind.
type ItemEvent struct {
	Item     models.Item     `json:"item"`
	Previous models.ItemKind `json:"previous_type,omitempty"`
}

// Ensure returns the id of the item revision (repoID, path, revision),
// creating it when missing and overwriting its kind when it differs. A zero
// kind keeps the stored kind and cannot create a row.
func (s *ItemStore) Ensure(ctx context.Context, repoID int64, path, revision string, kind models.ItemKind) (int64, error) {
	it := &models.Item{RepoID: repoID, Path: path, Revision: revision, Kind: kind}
	change, err := s.ensure(ctx, s.c.db.Queries, it)
	if err != nil {
		return 0, err
	}
	s.emitChanges(ctx, repoID, change)
	return it.ID, nil
}

// ensure stores it and reports the row change, or nil when the stored
// revision already matched.
func (s *ItemStore) ensure(ctx context.Context, q *database.Queries, it *models.Item) (*ItemEvent, error) {
	existing, err := q.GetItemRevision(ctx, it.RepoID, it.Path, it.Revision)
	switch {
	case err == nil:
		it.ID = existing.ID
		if it.Kind == 0 {
			it.Kind = existing.Kind
		}
		if existing.Kind == it.Kind {
			return nil, nil
		}
		if err := q.UpdateItemRevisionKind(ctx, it.ID, it.Kind); err != nil {
			return nil, storageErr("update item kind", err)
		}
		return &ItemEvent{Item: stored(it), Previous: existing.Kind}, nil
	case errors.Is(err, sql.ErrNoRows):
		if it.Kind == 0 {
			return nil, fmt.Errorf("item %s@%s: %w", it.Path, it.Revision, ErrItemKind)
		}
		if err := q.CreateItemRevision(ctx, it); err != nil {
			return nil, storageErr("create item revision", err)
		}
		return &ItemEvent{Item: stored(it)}, nil
	default:
		return nil, storageErr("lookup item revision", err)
	}
}

// stored copies the persisted columns of it.
func stored(it *models.Item) models.Item {
	return models.Item{ID: it.ID, RepoID: it.RepoID, Path: it.Path, Revision: it.Revision, Kind: it.Kind}
}

func (s *ItemStore) emitChanges(ctx context.Context, repoID int64, changes ...*ItemEvent) {
	for _, ch := range changes {
		if ch == nil {
			continue
		}
		action := events.ActionInsert
		if ch.Previous != 0 {
			action = events.ActionUpdate
		}
		s.c.emit(ctx, events.EntityItem, action, repoID, *ch)
	}
}

// FetchID looks up an item revision id without side effects.
func (s *ItemStore) FetchID(ctx context.Context, repoID int64, path, revision string) (int64, bool, error) {
	it, err := s.c.db.GetItemRevision(ctx, repoID, path, revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return it.ID, true, nil
}

// resolveID fills in it.ID from the store when it is not known yet.
func (s *ItemStore) resolveID(ctx context.Context, it *models.Item) (bool, error) {
	if it.ID != 0 {
		return true, nil
	}
	id, ok, err := s.FetchID(ctx, it.RepoID, it.Path, it.Revision)
	if ok {
		it.ID = id
	}
	return ok, err
}

// RecordLineage stores the edge from targetID to sourceID, replacing any
// previous edge between the pair. Use sourceID 0 for added items.
func (s *ItemStore) RecordLineage(ctx context.Context, targetID, sourceID int64, action models.Action, lc *models.LineChanges) error {
	return s.recordLineage(ctx, s.c.db.Queries, targetID, sourceID, action, lc)
}

func (s *ItemStore) recordLineage(ctx context.Context, q *database.Queries, targetID, sourceID int64, action models.Action, lc *models.LineChanges) error {
	return storageErr("record lineage", q.PutSourceEdge(ctx, database.SourceEdge{
		ItemID:      targetID,
		SourceID:    sourceID,
		Action:      action,
		LineChanges: lc,
	}))
}

// Sanitize makes the item's source list agree with its action before it is
// stored. Corrections are returned and logged; they never fail the write.
func (s *ItemStore) Sanitize(ctx context.Context, it *models.Item) []ConsistencyWarning {
	warnings := sanitizeItem(it)
	for _, w := range warnings {
		s.c.metrics.consistencyWarnings.WithLabelValues(w.Reason).Inc()
		s.c.logger.WarnContext(ctx, "item consistency warning",
			"repo_id", it.RepoID,
			"path", it.Path,
			"revision", it.Revision,
			"action", it.Action.String(),
			"reason", w.Reason,
			"message", w.Message,
		)
	}
	return warnings
}

func sanitizeItem(it *models.Item) []ConsistencyWarning {
	var warnings []ConsistencyWarning
	warn := func(reason, msg string) {
		warnings = append(warnings, ConsistencyWarning{Item: it, Reason: reason, Message: msg})
	}
	switch it.Action {
	case models.ActionAdded:
		if len(it.SourceItems) > 0 {
			warn("added_with_sources", `source items present although the "added" action allows none`)
			it.SourceItems = nil
		}
	case models.ActionModified, models.ActionMoved, models.ActionCopied, models.ActionDeleted:
		if len(it.SourceItems) > 1 {
			warn("too_many_sources", `more than one source item for an action that allows exactly one`)
			it.SourceItems = it.SourceItems[:1]
		}
		if len(it.SourceItems) == 0 {
			warn("missing_source", `no source item for an action that requires one`)
		}
	case models.ActionMerged:
		if len(it.SourceItems) == 0 {
			warn("missing_source", `no source item for a "merged" action`)
		}
	}
	if it.Action == models.ActionDeleted {
		it.Kind = it.Kind.Deleted()
	}
	return warnings
}

// LoadSourceItems fills SourceItems, ReplacedItem, Action and LineChanges of
// each item from the stored lineage edges. Items without a known id are skipped.
func (s *ItemStore) LoadSourceItems(ctx context.Context, items []*models.Item) error {
	byID := make(map[int64][]*models.Item, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if ok, err := s.resolveID(ctx, it); err != nil {
			return err
		} else if !ok {
			continue
		}
		if _, seen := byID[it.ID]; !seen {
			ids = append(ids, it.ID)
		}
		byID[it.ID] = append(byID[it.ID], it)
		it.SourceItems = nil
		it.ReplacedItem = nil
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		edges, err := s.c.db.SourceEdges(ctx, id)
		if err != nil {
			return err
		}
		for _, it := range byID[id] {
			applyEdgeAction(it, edges)
		}
	}

	linked, err := s.c.db.SourceItems(ctx, ids)
	if err != nil {
		return err
	}
	for _, li := range linked {
		for _, target := range byID[li.Edge.ItemID] {
			src := li.Item
			src.SelectedLabel().SetSource(models.FromOtherItem(target, models.TagSuccessorItem))
			if li.Edge.Action == models.ActionReplaced {
				target.ReplacedItem = &src
				continue
			}
			target.SourceItems = append(target.SourceItems, &src)
		}
	}
	return nil
}

// applyEdgeAction derives the item's own action from its incoming edges.
func applyEdgeAction(it *models.Item, edges []database.SourceEdge) {
	it.Action = models.ActionNone
	it.LineChanges = nil
	for _, e := range edges {
		if e.Action == models.ActionReplaced {
			continue
		}
		it.Action = e.Action
		if e.LineChanges != nil {
			lc := *e.LineChanges
			it.LineChanges = &lc
		}
		return
	}
}

// LoadSuccessorItems fills SuccessorItems of each item. Successors carry the
// action of the edge that derived them, ordered by item revision id.
func (s *ItemStore) LoadSuccessorItems(ctx context.Context, items []*models.Item) error {
	byID := make(map[int64][]*models.Item, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if ok, err := s.resolveID(ctx, it); err != nil {
			return err
		} else if !ok {
			continue
		}
		if _, seen := byID[it.ID]; !seen {
			ids = append(ids, it.ID)
		}
		byID[it.ID] = append(byID[it.ID], it)
		it.SuccessorItems = nil
	}
	if len(ids) == 0 {
		return nil
	}
	linked, err := s.c.db.SuccessorItems(ctx, ids)
	if err != nil {
		return err
	}
	for _, li := range linked {
		if li.Edge.Action == models.ActionReplaced {
			continue
		}
		for _, source := range byID[li.Edge.SourceID] {
			succ := li.Item
			succ.Action = li.Edge.Action
			if li.Edge.LineChanges != nil {
				lc := *li.Edge.LineChanges
				succ.LineChanges = &lc
			}
			succ.SelectedLabel().SetSource(models.FromOtherItem(source, models.TagSourceItem))
			source.SuccessorItems = append(source.SuccessorItems, &succ)
		}
	}
	return nil
}
