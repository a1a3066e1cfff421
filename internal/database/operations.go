package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/models"
)

const operationColumns = `op.vc_op_id, op.repo_id, op.type, op.committer, op.author, op.date, op.revision, op.message, op.uid, op.extra`

// scanOperation reads operationColumns, after any leading columns in prefix.
func scanOperation(row rowScanner, prefix ...any) (*models.Operation, error) {
	op := &models.Operation{}
	var date int64
	var extra string
	dest := append(prefix, &op.ID, &op.RepoID, &op.Kind, &op.Committer, &op.Author, &date, &op.Revision, &op.Message, &op.UserID, &extra)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	op.Date = time.Unix(date, 0).UTC()
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &op.Extra); err != nil {
			return nil, fmt.Errorf("decode operation %d extra: %w", op.ID, err)
		}
	}
	return op, nil
}

func (q *Queries) CreateOperation(ctx context.Context, op *models.Operation) error {
	extra, err := encodeJSON(op.Extra)
	if err != nil {
		return fmt.Errorf("encode operation extra: %w", err)
	}
	id, err := q.insert(ctx, "vc_op_id",
		`INSERT INTO operations (repo_id, type, committer, author, date, revision, message, uid, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.RepoID, op.Kind, op.Committer, op.Author, op.Date.Unix(), op.Revision, op.Message, op.UserID, extra)
	if err != nil {
		return err
	}
	op.ID = id
	return nil
}

func (q *Queries) GetOperation(ctx context.Context, id int64) (*models.Operation, error) {
	return scanOperation(q.queryRow(ctx, `SELECT `+operationColumns+` FROM operations op WHERE op.vc_op_id = ?`, id))
}

// DeleteOperation removes the label links, item links and row of an operation.
func (q *Queries) DeleteOperation(ctx context.Context, id int64) error {
	for _, stmt := range []string{
		`DELETE FROM operation_labels WHERE vc_op_id = ?`,
		`DELETE FROM operation_items WHERE vc_op_id = ?`,
		`DELETE FROM operations WHERE vc_op_id = ?`,
	} {
		if _, err := q.exec(ctx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}

// AddOperationItem links an item revision to an operation. A member link
// takes precedence over a cached-affected link for the same item.
func (q *Queries) AddOperationItem(ctx context.Context, opID, itemID int64, m models.Membership) error {
	conflict := `DO NOTHING`
	if m == models.MemberItem {
		conflict = `DO UPDATE SET type = excluded.type`
	}
	_, err := q.exec(ctx,
		`INSERT INTO operation_items (vc_op_id, item_revision_id, type) VALUES (?, ?, ?)
		 ON CONFLICT (vc_op_id, item_revision_id) `+conflict,
		opID, itemID, m)
	return err
}

// OperationItems returns the items linked to opID with membership m, ordered by path.
func (q *Queries) OperationItems(ctx context.Context, opID int64, m models.Membership) ([]models.Item, error) {
	rows, err := q.query(ctx,
		`SELECT `+itemColumns+` FROM operation_items oi
		 INNER JOIN item_revisions ir ON ir.item_revision_id = oi.item_revision_id
		 WHERE oi.vc_op_id = ? AND oi.type = ?
		 ORDER BY ir.path, ir.item_revision_id`, opID, m)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// QueryOperations returns the operations matched by cq, newest first.
func (q *Queries) QueryOperations(ctx context.Context, cq constraint.Query, page constraint.Page) ([]models.Operation, error) {
	query := `SELECT DISTINCT ` + operationColumns + ` FROM ` + cq.From + cq.WhereClause() +
		` ORDER BY op.date DESC, op.vc_op_id DESC`
	args := append([]any{}, cq.Args...)
	if page.Limited() {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.Limit, page.Offset)
	}
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ops []models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// OperationsByRevision maps each revision in revisions to its operation of kind.
func (q *Queries) OperationsByRevision(ctx context.Context, repoID int64, kind models.OperationKind, revisions []string) (map[string]models.Operation, error) {
	out := make(map[string]models.Operation, len(revisions))
	if len(revisions) == 0 {
		return out, nil
	}
	args := append([]any{repoID, kind}, stringArgs(revisions)...)
	rows, err := q.query(ctx,
		`SELECT `+operationColumns+` FROM operations op
		 WHERE op.repo_id = ? AND op.type = ? AND op.revision IN (`+placeholders(len(revisions))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out[op.Revision] = *op
	}
	return out, rows.Err()
}

// OperationsByItem maps each item revision id to the operation of kind that
// has it as a member.
func (q *Queries) OperationsByItem(ctx context.Context, kind models.OperationKind, itemIDs []int64) (map[int64]models.Operation, error) {
	out := make(map[int64]models.Operation, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	args := append([]any{models.MemberItem, kind}, int64Args(itemIDs)...)
	rows, err := q.query(ctx,
		`SELECT oi.item_revision_id, `+operationColumns+` FROM operation_items oi
		 INNER JOIN operations op ON op.vc_op_id = oi.vc_op_id
		 WHERE oi.type = ? AND op.type = ? AND oi.item_revision_id IN (`+placeholders(len(itemIDs))+`)
		 ORDER BY op.vc_op_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var itemID int64
		op, err := scanOperation(rows, &itemID)
		if err != nil {
			return nil, err
		}
		if _, seen := out[itemID]; !seen {
			out[itemID] = *op
		}
	}
	return out, rows.Err()
}

// FirstMemberOperation returns the id of the oldest operation holding itemID as a member.
func (q *Queries) FirstMemberOperation(ctx context.Context, itemID int64) (int64, error) {
	var id sql.NullInt64
	if err := q.queryRow(ctx,
		`SELECT MIN(vc_op_id) FROM operation_items WHERE item_revision_id = ? AND type = ?`,
		itemID, models.MemberItem).Scan(&id); err != nil {
		return 0, err
	}
	if !id.Valid {
		return 0, sql.ErrNoRows
	}
	return id.Int64, nil
}

// ClearOperationUser detaches operations of repoID attributed to uid.
func (q *Queries) ClearOperationUser(ctx context.Context, repoID, uid int64) (int64, error) {
	res, err := q.exec(ctx, `UPDATE operations SET uid = 0 WHERE repo_id = ? AND uid = ?`, repoID, uid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AssignOperationUser attributes every operation of repoID committed by committer to uid.
func (q *Queries) AssignOperationUser(ctx context.Context, repoID int64, committer string, uid int64) (int64, error) {
	res, err := q.exec(ctx, `UPDATE operations SET uid = ? WHERE repo_id = ? AND committer = ?`, uid, repoID, committer)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteRepositoryOperations(ctx context.Context, repoID int64) (int64, error) {
	for _, table := range []string{"operation_labels", "operation_items"} {
		if _, err := q.exec(ctx,
			`DELETE FROM `+table+` WHERE vc_op_id IN (SELECT vc_op_id FROM operations WHERE repo_id = ?)`,
			repoID); err != nil {
			return 0, err
		}
	}
	res, err := q.exec(ctx, `DELETE FROM operations WHERE repo_id = ?`, repoID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatsColumn is a grouping column: Name labels the value, Expr selects it.
type StatsColumn struct {
	Name string
	Expr string
}

// StatsOrder sorts grouped statistics by Expr.
type StatsOrder struct {
	Expr       string
	Descending bool
}

const statsAggregates = `COUNT(DISTINCT op.vc_op_id), MIN(op.date), MAX(op.date)`

func statsFromRow(total int64, first, last sql.NullInt64) models.OperationStats {
	return models.OperationStats{
		Total:     total,
		FirstDate: time.Unix(first.Int64, 0).UTC(),
		LastDate:  time.Unix(last.Int64, 0).UTC(),
	}
}

// OperationStats aggregates the operations matched by cq. Dates are the Unix
// epoch when nothing matched.
func (q *Queries) OperationStats(ctx context.Context, cq constraint.Query) (models.OperationStats, error) {
	var total int64
	var first, last sql.NullInt64
	err := q.queryRow(ctx, `SELECT `+statsAggregates+` FROM `+cq.From+cq.WhereClause(), cq.Args...).
		Scan(&total, &first, &last)
	if err != nil {
		return models.OperationStats{}, err
	}
	return statsFromRow(total, first, last), nil
}

// GroupedOperationStats aggregates per distinct value of columns. Expressions
// in columns and order must come from a fixed allowlist.
func (q *Queries) GroupedOperationStats(ctx context.Context, cq constraint.Query, columns []StatsColumn, order []StatsOrder) ([]models.GroupedStats, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("grouped stats: no group columns")
	}
	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = c.Expr
	}
	group := strings.Join(exprs, ", ")
	var orderTerms []string
	for _, o := range order {
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		orderTerms = append(orderTerms, o.Expr+" "+dir)
	}
	orderTerms = append(orderTerms, exprs...)

	rows, err := q.query(ctx,
		`SELECT `+group+`, `+statsAggregates+` FROM `+cq.From+cq.WhereClause()+
			` GROUP BY `+group+` ORDER BY `+strings.Join(orderTerms, ", "), cq.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GroupedStats
	for rows.Next() {
		vals := make([]sql.NullString, len(columns))
		var total int64
		var first, last sql.NullInt64
		dest := make([]any, 0, len(columns)+3)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		dest = append(dest, &total, &first, &last)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		g := models.GroupedStats{Values: make(map[string]string, len(columns)), OperationStats: statsFromRow(total, first, last)}
		keys := make([]string, len(columns))
		for i, c := range columns {
			keys[i] = vals[i].String
			g.Values[c.Name] = vals[i].String
		}
		g.Key = strings.Join(keys, "\t")
		out = append(out, g)
	}
	return out, rows.Err()
}
