package database

import (
	"context"
	"strings"

	"github.com/marvil07/versioncontrol/internal/models"
)

// LabelFilter narrows ListLabels. Nil fields do not filter; NamePatterns use
// LIKE wildcards and are OR'd.
type LabelFilter struct {
	RepoID       int64
	IDs          []int64
	Kind         *models.LabelKind
	NamePatterns []string
}

func (q *Queries) GetLabel(ctx context.Context, repoID int64, name string, kind models.LabelKind) (*models.Label, error) {
	l := &models.Label{}
	err := q.queryRow(ctx,
		`SELECT label_id, repo_id, name, type FROM labels WHERE repo_id = ? AND name = ? AND type = ?`,
		repoID, name, kind).Scan(&l.ID, &l.RepoID, &l.Name, &l.Kind)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (q *Queries) CreateLabel(ctx context.Context, l *models.Label) error {
	id, err := q.insert(ctx, "label_id",
		`INSERT INTO labels (repo_id, name, type) VALUES (?, ?, ?)`,
		l.RepoID, l.Name, l.Kind)
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

func (q *Queries) ListLabels(ctx context.Context, f LabelFilter) ([]models.Label, error) {
	where := []string{"repo_id = ?"}
	args := []any{f.RepoID}
	if f.IDs != nil {
		where = append(where, "label_id IN ("+placeholders(len(f.IDs))+")")
		args = append(args, int64Args(f.IDs)...)
	}
	if f.Kind != nil {
		where = append(where, "type = ?")
		args = append(args, *f.Kind)
	}
	if f.NamePatterns != nil {
		likes := make([]string, len(f.NamePatterns))
		for i, p := range f.NamePatterns {
			likes[i] = "name LIKE ?"
			args = append(args, p)
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}
	rows, err := q.query(ctx,
		`SELECT label_id, repo_id, name, type FROM labels WHERE `+strings.Join(where, " AND ")+` ORDER BY label_id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var labels []models.Label
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.ID, &l.RepoID, &l.Name, &l.Kind); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// SetOperationLabels replaces the label links of an operation.
func (q *Queries) SetOperationLabels(ctx context.Context, opID int64, labels []models.Label) error {
	if _, err := q.exec(ctx, `DELETE FROM operation_labels WHERE vc_op_id = ?`, opID); err != nil {
		return err
	}
	for _, l := range labels {
		if _, err := q.exec(ctx,
			`INSERT INTO operation_labels (vc_op_id, label_id, action) VALUES (?, ?, ?)`,
			opID, l.ID, l.Action); err != nil {
			return err
		}
	}
	return nil
}

// OperationLabels returns the labels of each operation in opIDs, keyed by operation id.
func (q *Queries) OperationLabels(ctx context.Context, opIDs []int64) (map[int64][]models.Label, error) {
	out := make(map[int64][]models.Label, len(opIDs))
	if len(opIDs) == 0 {
		return out, nil
	}
	rows, err := q.query(ctx,
		`SELECT ol.vc_op_id, ol.action, l.label_id, l.repo_id, l.name, l.type
		 FROM operation_labels ol
		 INNER JOIN labels l ON l.label_id = ol.label_id
		 WHERE ol.vc_op_id IN (`+placeholders(len(opIDs))+`)
		 ORDER BY ol.vc_op_id, l.label_id`, int64Args(opIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var opID int64
		var l models.Label
		if err := rows.Scan(&opID, &l.Action, &l.ID, &l.RepoID, &l.Name, &l.Kind); err != nil {
			return nil, err
		}
		out[opID] = append(out[opID], l)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteRepositoryLabels(ctx context.Context, repoID int64) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM labels WHERE repo_id = ?`, repoID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
