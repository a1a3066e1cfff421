package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/events"
	"github.com/marvil07/versioncontrol/internal/models"
)

// OperationStore records commits, branch and tag operations together with
// their labels and items, and answers constraint queries over them.
type OperationStore struct {
	c *Catalog
}

// OperationEvent is the payload of operation insert and delete events.
type OperationEvent struct {
	Operation models.Operation `json:"operation"`
	Items     []*models.Item   `json:"items,omitempty"`
}

// LabelChangeEvent is the payload of label events for one operation.
type LabelChangeEvent struct {
	OperationID int64          `json:"vc_op_id"`
	Previous    []models.Label `json:"previous"`
	Labels      []models.Label `json:"labels"`
}

// Get loads one operation with its labels.
func (s *OperationStore) Get(ctx context.Context, id int64) (*models.Operation, error) {
	op, err := s.c.db.GetOperation(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("operation %d", id))
	}
	if err := s.attachLabels(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// attachLabels loads the labels of ops with one query.
func (s *OperationStore) attachLabels(ctx context.Context, ops ...*models.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	ids := make([]int64, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	labels, err := s.c.db.OperationLabels(ctx, ids)
	if err != nil {
		return fmt.Errorf("load operation labels: %w", err)
	}
	for _, op := range ops {
		op.Labels = labels[op.ID]
		if op.Labels == nil {
			op.Labels = []models.Label{}
		}
	}
	return nil
}

// Insert records op and its items in one transaction and returns the new
// operation id. Items are sanitized first; their source items, replaced
// items and lineage edges are stored along with them.
func (s *OperationStore) Insert(ctx context.Context, op *models.Operation, items []*models.Item) (id int64, err error) {
	ctx, span := startSpan(ctx, "catalog.operation.insert",
		attribute.Int64("repo_id", op.RepoID), attribute.String("kind", op.Kind.String()))
	defer func() { endSpan(span, err) }()

	repo, err := s.c.Repositories.Get(ctx, op.RepoID)
	if err != nil {
		return 0, err
	}
	op.Repository = repo
	if op.Author == "" {
		op.Author = op.Committer
	}
	if op.Date.IsZero() {
		op.Date = time.Now().UTC()
	}
	for i := range op.Labels {
		op.Labels[i].RepoID = repo.ID
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	var changes []*ItemEvent
	err = s.c.db.WithTx(ctx, func(q *database.Queries) error {
		changes = changes[:0]
		op.UserID = 0
		if acct, err := q.AccountByUsername(ctx, repo.ID, op.Committer); err == nil {
			op.UserID = acct.UserID
		} else if !errors.Is(err, sql.ErrNoRows) {
			return storageErr("resolve committer", err)
		}
		if err := q.CreateOperation(ctx, op); err != nil {
			return storageErr("create operation", err)
		}
		if err := s.linkLabels(ctx, q, op.ID, op.Labels); err != nil {
			return err
		}
		for _, it := range items {
			if err := s.insertItem(ctx, q, op.ID, repo.ID, it, &changes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if observer, ok := backend.As[backend.OperationObserver](s.c.backends, repo.VCS); ok {
		if err := observer.OperationInserted(ctx, op, items); err != nil {
			s.c.logger.WarnContext(ctx, "backend observer failed", "vc_op_id", op.ID, "vcs", repo.VCS, "error", err)
		}
	}
	s.c.emit(ctx, events.EntityOperation, events.ActionInsert, repo.ID, OperationEvent{Operation: snapshotOperation(op), Items: snapshotItems(items)})
	s.c.emit(ctx, events.EntityLabel, events.ActionInsert, repo.ID, LabelChangeEvent{
		OperationID: op.ID,
		Previous:    []models.Label{},
		Labels:      slices.Clone(op.Labels),
	})
	s.c.Items.emitChanges(ctx, repo.ID, changes...)
	s.c.metrics.operationsInserted.WithLabelValues(repo.VCS, op.Kind.String()).Inc()
	return op.ID, nil
}

func (s *OperationStore) linkLabels(ctx context.Context, q *database.Queries, opID int64, labels []models.Label) error {
	for i := range labels {
		if err := s.c.Labels.ensure(ctx, q, &labels[i]); err != nil {
			return err
		}
	}
	return storageErr("link operation labels", q.SetOperationLabels(ctx, opID, labels))
}

func (s *OperationStore) insertItem(ctx context.Context, q *database.Queries, opID, repoID int64, it *models.Item, changes *[]*ItemEvent) error {
	ensure := func(target *models.Item) error {
		ch, err := s.c.Items.ensure(ctx, q, target)
		if ch != nil {
			*changes = append(*changes, ch)
		}
		return err
	}

	it.RepoID = repoID
	s.c.Items.Sanitize(ctx, it)
	if err := ensure(it); err != nil {
		return err
	}
	if err := q.AddOperationItem(ctx, opID, it.ID, models.MemberItem); err != nil {
		return storageErr("link member item", err)
	}

	for _, src := range it.SourceItems {
		src.RepoID = repoID
		if err := ensure(src); err != nil {
			return err
		}
		if err := s.c.Items.recordLineage(ctx, q, it.ID, src.ID, it.Action, it.LineChanges); err != nil {
			return err
		}
		switch it.Action {
		case models.ActionMoved, models.ActionCopied, models.ActionMerged:
			if src.Path != it.Path {
				if err := q.AddOperationItem(ctx, opID, src.ID, models.CachedAffectedItem); err != nil {
					return storageErr("link cached item", err)
				}
			}
		}
	}
	if it.Action == models.ActionAdded {
		if err := s.c.Items.recordLineage(ctx, q, it.ID, 0, models.ActionAdded, it.LineChanges); err != nil {
			return err
		}
	}
	if r := it.ReplacedItem; r != nil {
		r.RepoID = repoID
		if err := ensure(r); err != nil {
			return err
		}
		if err := s.c.Items.recordLineage(ctx, q, it.ID, r.ID, models.ActionReplaced, nil); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an operation with its label and item links. Item revisions
// stay, since lineage and other operations may still refer to them.
func (s *OperationStore) Delete(ctx context.Context, op *models.Operation) (err error) {
	ctx, span := startSpan(ctx, "catalog.operation.delete", attribute.Int64("vc_op_id", op.ID))
	defer func() { endSpan(span, err) }()

	repo, err := s.c.Repositories.Get(ctx, op.RepoID)
	if err != nil {
		return err
	}
	members, err := s.c.db.OperationItems(ctx, op.ID, models.MemberItem)
	if err != nil {
		return storageErr("load operation items", err)
	}
	items := make([]*models.Item, len(members))
	for i := range members {
		items[i] = &members[i]
	}

	if observer, ok := backend.As[backend.OperationObserver](s.c.backends, repo.VCS); ok {
		if err := observer.OperationDeleted(ctx, op); err != nil {
			s.c.logger.WarnContext(ctx, "backend observer failed", "vc_op_id", op.ID, "vcs", repo.VCS, "error", err)
		}
	}
	labels, err := s.c.db.OperationLabels(ctx, []int64{op.ID})
	if err != nil {
		return storageErr("load operation labels", err)
	}
	previous := labels[op.ID]
	if previous == nil {
		previous = []models.Label{}
	}

	s.c.emit(ctx, events.EntityOperation, events.ActionDelete, repo.ID, OperationEvent{Operation: snapshotOperation(op), Items: items})
	s.c.emit(ctx, events.EntityLabel, events.ActionDelete, repo.ID, LabelChangeEvent{
		OperationID: op.ID,
		Previous:    previous,
		Labels:      []models.Label{},
	})

	err = s.c.db.WithTx(ctx, func(q *database.Queries) error {
		return storageErr("delete operation", q.DeleteOperation(ctx, op.ID))
	})
	if err != nil {
		return err
	}
	s.c.metrics.operationsDeleted.WithLabelValues(repo.VCS, op.Kind.String()).Inc()
	return nil
}

// UpdateLabels replaces the labels of an operation.
func (s *OperationStore) UpdateLabels(ctx context.Context, op *models.Operation, labels []models.Label) error {
	previous, err := s.c.db.OperationLabels(ctx, []int64{op.ID})
	if err != nil {
		return storageErr("load operation labels", err)
	}
	for i := range labels {
		labels[i].RepoID = op.RepoID
	}
	old := previous[op.ID]
	if old == nil {
		old = []models.Label{}
	}
	s.c.emit(ctx, events.EntityLabel, events.ActionUpdate, op.RepoID, LabelChangeEvent{
		OperationID: op.ID,
		Previous:    old,
		Labels:      slices.Clone(labels),
	})

	err = s.c.db.WithTx(ctx, func(q *database.Queries) error {
		return s.linkLabels(ctx, q, op.ID, labels)
	})
	if err != nil {
		return err
	}
	op.Labels = labels
	return nil
}

// Items returns the member items of op ordered by path. Source items are
// loaded when fetchSources is true, or by default for commits only.
func (s *OperationStore) Items(ctx context.Context, op *models.Operation, fetchSources *bool) ([]*models.Item, error) {
	members, err := s.c.db.OperationItems(ctx, op.ID, models.MemberItem)
	if err != nil {
		return nil, storageErr("load operation items", err)
	}
	items := make([]*models.Item, len(members))
	for i := range members {
		it := &members[i]
		it.SelectedLabel().SetSource(models.FromOperation(op.ID))
		items[i] = it
	}

	fetch := op.Kind == models.OperationCommit
	if fetchSources != nil {
		fetch = *fetchSources
	}
	if fetch {
		if err := s.c.Items.LoadSourceItems(ctx, items); err != nil {
			return nil, storageErr("load source items", err)
		}
	}
	return items, nil
}

// snapshotOperation copies op for an event payload, which sinks may read
// after the caller has moved on.
func snapshotOperation(op *models.Operation) models.Operation {
	c := *op
	c.Labels = slices.Clone(op.Labels)
	if op.Repository != nil {
		r := cloneRepository(*op.Repository)
		c.Repository = &r
	}
	return c
}

func snapshotItems(items []*models.Item) []*models.Item {
	out := make([]*models.Item, len(items))
	for i, it := range items {
		c := stored(it)
		c.Action = it.Action
		if it.LineChanges != nil {
			lc := *it.LineChanges
			c.LineChanges = &lc
		}
		for _, src := range it.SourceItems {
			sc := stored(src)
			c.SourceItems = append(c.SourceItems, &sc)
		}
		if it.ReplacedItem != nil {
			rc := stored(it.ReplacedItem)
			c.ReplacedItem = &rc
		}
		out[i] = &c
	}
	return out
}
