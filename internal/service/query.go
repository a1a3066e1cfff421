package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/models"
)

// Query returns the operations matching set, newest first, with their
// labels attached. An invalid set matches nothing.
func (s *OperationStore) Query(ctx context.Context, set constraint.Set, page constraint.Page) (ops []models.Operation, err error) {
	ctx, span := startSpan(ctx, "catalog.operation.query", attribute.Int("constraints", len(set)))
	defer func() { endSpan(span, err) }()
	defer s.c.metrics.observeQuery("operations", time.Now())

	cq, ok := s.c.buildQuery(ctx, set)
	if !ok {
		return nil, nil
	}
	ops, err = s.c.db.QueryOperations(ctx, cq, page)
	if err != nil {
		return nil, storageErr("query operations", err)
	}
	ptrs := make([]*models.Operation, len(ops))
	for i := range ops {
		ptrs[i] = &ops[i]
	}
	if err := s.attachLabels(ctx, ptrs...); err != nil {
		return nil, err
	}
	return ops, nil
}

func (s *OperationStore) Commits(ctx context.Context, set constraint.Set, page constraint.Page) ([]models.Operation, error) {
	return s.queryKind(ctx, set, page, models.OperationCommit)
}

func (s *OperationStore) Branches(ctx context.Context, set constraint.Set, page constraint.Page) ([]models.Operation, error) {
	return s.queryKind(ctx, set, page, models.OperationBranch)
}

func (s *OperationStore) Tags(ctx context.Context, set constraint.Set, page constraint.Page) ([]models.Operation, error) {
	return s.queryKind(ctx, set, page, models.OperationTag)
}

func (s *OperationStore) queryKind(ctx context.Context, set constraint.Set, page constraint.Page, kind models.OperationKind) ([]models.Operation, error) {
	narrowed, ok := set.Narrow(constraint.KeyTypes, int64(kind))
	if !ok {
		s.c.logger.DebugContext(ctx, "operation type constraint excludes requested kind", "kind", kind.String())
		return nil, nil
	}
	return s.Query(ctx, narrowed, page)
}

// Order sorts grouped statistics by a group column or a calculated column.
type Order struct {
	Column     string
	Descending bool
}

type GroupOptions struct {
	GroupBy []string
	OrderBy []Order
}

var calculatedExprs = map[string]string{
	constraint.TotalOperations:    "COUNT(DISTINCT op.vc_op_id)",
	constraint.FirstOperationDate: "MIN(op.date)",
	constraint.LastOperationDate:  "MAX(op.date)",
}

func epochStats() models.OperationStats {
	epoch := time.Unix(0, 0).UTC()
	return models.OperationStats{FirstDate: epoch, LastDate: epoch}
}

// Statistics counts the operations matching set and reports the first and
// last operation dates. No match gives a zero count with epoch dates.
func (s *OperationStore) Statistics(ctx context.Context, set constraint.Set) (stats models.OperationStats, err error) {
	ctx, span := startSpan(ctx, "catalog.operation.statistics", attribute.Int("constraints", len(set)))
	defer func() { endSpan(span, err) }()
	defer s.c.metrics.observeQuery("statistics", time.Now())

	cq, ok := s.c.buildQuery(ctx, set)
	if !ok {
		return epochStats(), nil
	}
	stats, err = s.c.db.OperationStats(ctx, cq)
	if err != nil {
		return models.OperationStats{}, storageErr("operation statistics", err)
	}
	return stats, nil
}

// GroupedStatistics aggregates per distinct combination of opts.GroupBy
// columns. Results are ordered by opts.OrderBy, then by the group columns.
// Unknown columns are treated like an invalid constraint and match nothing.
func (s *OperationStore) GroupedStatistics(ctx context.Context, set constraint.Set, opts GroupOptions) (groups []models.GroupedStats, err error) {
	ctx, span := startSpan(ctx, "catalog.operation.grouped_statistics", attribute.StringSlice("group_by", opts.GroupBy))
	defer func() { endSpan(span, err) }()
	defer s.c.metrics.observeQuery("grouped_statistics", time.Now())

	if len(opts.GroupBy) == 0 {
		return nil, fmt.Errorf("grouped statistics: no group columns: %w", ErrConstraint)
	}
	columns := make([]database.StatsColumn, 0, len(opts.GroupBy))
	var joins []func(*constraint.Builder)
	for _, name := range opts.GroupBy {
		col, ok := constraint.GroupColumn(name)
		if !ok {
			s.rejectGroupColumn(ctx, name)
			return []models.GroupedStats{}, nil
		}
		columns = append(columns, database.StatsColumn{Name: name, Expr: col.Expr})
		if col.Join != nil {
			joins = append(joins, col.Join)
		}
	}
	order := make([]database.StatsOrder, 0, len(opts.OrderBy))
	for _, o := range opts.OrderBy {
		expr, ok := calculatedExprs[o.Column]
		if !ok {
			col, known := constraint.GroupColumn(o.Column)
			if !known {
				s.rejectGroupColumn(ctx, o.Column)
				return []models.GroupedStats{}, nil
			}
			expr = col.Expr
			if col.Join != nil {
				joins = append(joins, col.Join)
			}
		}
		order = append(order, database.StatsOrder{Expr: expr, Descending: o.Descending})
	}

	cq, ok := s.c.buildQuery(ctx, set, joins...)
	if !ok {
		return []models.GroupedStats{}, nil
	}
	groups, err = s.c.db.GroupedOperationStats(ctx, cq, columns, order)
	if err != nil {
		return nil, storageErr("grouped statistics", err)
	}
	if groups == nil {
		groups = []models.GroupedStats{}
	}
	return groups, nil
}

func (s *OperationStore) rejectGroupColumn(ctx context.Context, name string) {
	s.c.metrics.constraintRejected.WithLabelValues("group_by", constraint.ReasonUnknown).Inc()
	s.c.logger.DebugContext(ctx, "unknown statistics column", "column", name)
}
