package database

import (
	"context"
	"fmt"

	"github.com/marvil07/versioncontrol/internal/models"
)

// SourceEdge is one lineage link from an item revision to its source.
// SourceID 0 marks an added item with no source.
type SourceEdge struct {
	ItemID      int64
	SourceID    int64
	Action      models.Action
	LineChanges *models.LineChanges
}

// LinkedItem is an item revision reached over a lineage edge.
type LinkedItem struct {
	Edge SourceEdge
	Item models.Item
}

const itemColumns = `ir.item_revision_id, ir.repo_id, ir.path, ir.revision, ir.type`

func scanItem(row rowScanner, extra ...any) (*models.Item, error) {
	it := &models.Item{}
	dest := append([]any{&it.ID, &it.RepoID, &it.Path, &it.Revision, &it.Kind}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return it, nil
}

func (q *Queries) GetItemRevision(ctx context.Context, repoID int64, path, revision string) (*models.Item, error) {
	return scanItem(q.queryRow(ctx,
		`SELECT `+itemColumns+` FROM item_revisions ir WHERE ir.repo_id = ? AND ir.path = ? AND ir.revision = ?`,
		repoID, path, revision))
}

func (q *Queries) GetItemRevisionByID(ctx context.Context, id int64) (*models.Item, error) {
	return scanItem(q.queryRow(ctx,
		`SELECT `+itemColumns+` FROM item_revisions ir WHERE ir.item_revision_id = ?`, id))
}

func (q *Queries) CreateItemRevision(ctx context.Context, it *models.Item) error {
	id, err := q.insert(ctx, "item_revision_id",
		`INSERT INTO item_revisions (repo_id, path, revision, type) VALUES (?, ?, ?, ?)`,
		it.RepoID, it.Path, it.Revision, it.Kind)
	if err != nil {
		return err
	}
	it.ID = id
	return nil
}

func (q *Queries) UpdateItemRevisionKind(ctx context.Context, id int64, kind models.ItemKind) error {
	_, err := q.exec(ctx, `UPDATE item_revisions SET type = ? WHERE item_revision_id = ?`, kind, id)
	return err
}

// PutSourceEdge replaces any existing edge between the same pair.
func (q *Queries) PutSourceEdge(ctx context.Context, e SourceEdge) error {
	if _, err := q.exec(ctx,
		`DELETE FROM source_items WHERE item_revision_id = ? AND source_item_revision_id = ?`,
		e.ItemID, e.SourceID); err != nil {
		return err
	}
	var recorded bool
	var added, removed int
	if e.LineChanges != nil {
		recorded = true
		added, removed = e.LineChanges.Added, e.LineChanges.Removed
	}
	_, err := q.exec(ctx,
		`INSERT INTO source_items (item_revision_id, source_item_revision_id, action, line_changes_recorded, line_changes_added, line_changes_removed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ItemID, e.SourceID, e.Action, recorded, added, removed)
	return err
}

// SourceEdges returns the edges leaving itemID, including the sentinel 0 edge.
func (q *Queries) SourceEdges(ctx context.Context, itemID int64) ([]SourceEdge, error) {
	rows, err := q.query(ctx,
		`SELECT item_revision_id, source_item_revision_id, action, line_changes_recorded, line_changes_added, line_changes_removed
		 FROM source_items WHERE item_revision_id = ? ORDER BY source_item_revision_id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []SourceEdge
	for rows.Next() {
		var e SourceEdge
		var recorded bool
		var lc models.LineChanges
		if err := rows.Scan(&e.ItemID, &e.SourceID, &e.Action, &recorded, &lc.Added, &lc.Removed); err != nil {
			return nil, err
		}
		if recorded {
			e.LineChanges = &lc
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// SourceItems returns the source revisions of itemIDs, joined with their rows.
func (q *Queries) SourceItems(ctx context.Context, itemIDs []int64) ([]LinkedItem, error) {
	return q.linkedItems(ctx, "si.item_revision_id", "si.source_item_revision_id", itemIDs)
}

// SuccessorItems returns the revisions derived from itemIDs.
func (q *Queries) SuccessorItems(ctx context.Context, itemIDs []int64) ([]LinkedItem, error) {
	return q.linkedItems(ctx, "si.source_item_revision_id", "si.item_revision_id", itemIDs)
}

func (q *Queries) linkedItems(ctx context.Context, fromCol, toCol string, itemIDs []int64) ([]LinkedItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	rows, err := q.query(ctx,
		`SELECT `+itemColumns+`, si.item_revision_id, si.source_item_revision_id, si.action,
		        si.line_changes_recorded, si.line_changes_added, si.line_changes_removed
		 FROM source_items si
		 INNER JOIN item_revisions ir ON ir.item_revision_id = `+toCol+`
		 WHERE `+fromCol+` IN (`+placeholders(len(itemIDs))+`)
		 ORDER BY `+fromCol+`, `+toCol, int64Args(itemIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LinkedItem
	for rows.Next() {
		var li LinkedItem
		var recorded bool
		var lc models.LineChanges
		it, err := scanItem(rows, &li.Edge.ItemID, &li.Edge.SourceID, &li.Edge.Action, &recorded, &lc.Added, &lc.Removed)
		if err != nil {
			return nil, err
		}
		if recorded {
			li.Edge.LineChanges = &lc
		}
		li.Item = *it
		out = append(out, li)
	}
	return out, rows.Err()
}

// DeleteRepositoryItems removes every item revision of a repository and every
// lineage edge touching one, in either direction.
func (q *Queries) DeleteRepositoryItems(ctx context.Context, repoID int64) (int64, error) {
	for _, col := range []string{"item_revision_id", "source_item_revision_id"} {
		if _, err := q.exec(ctx,
			`DELETE FROM source_items WHERE `+col+` IN (SELECT item_revision_id FROM item_revisions WHERE repo_id = ?)`,
			repoID); err != nil {
			return 0, err
		}
	}
	res, err := q.exec(ctx, `DELETE FROM item_revisions WHERE repo_id = ?`, repoID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) CountRepositoryRows(ctx context.Context, table string, repoID int64) (int64, error) {
	var query string
	switch table {
	case "operations", "labels", "item_revisions", "accounts", "repositories":
		query = `SELECT COUNT(*) FROM ` + table + ` WHERE repo_id = ?`
	case "operation_items", "operation_labels":
		query = `SELECT COUNT(*) FROM ` + table + ` t INNER JOIN operations op ON op.vc_op_id = t.vc_op_id WHERE op.repo_id = ?`
	case "source_items":
		query = `SELECT COUNT(*) FROM source_items si INNER JOIN item_revisions ir
			ON ir.item_revision_id = si.item_revision_id OR ir.item_revision_id = si.source_item_revision_id
			WHERE ir.repo_id = ?`
	default:
		return 0, fmt.Errorf("count rows: unknown table %q", table)
	}
	var n int64
	err := q.queryRow(ctx, query, repoID).Scan(&n)
	return n, err
}
