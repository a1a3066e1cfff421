package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CatalogStats summarizes catalog size and connection pool state for the
// status command.
type CatalogStats struct {
	Repositories  int64
	Operations    int64
	Labels        int64
	ItemRevisions int64
	LineageEdges  int64
	Accounts      int64
	Pool          sql.DBStats
}

func (d *DB) CatalogStats(ctx context.Context) (CatalogStats, error) {
	if err := d.db.PingContext(ctx); err != nil {
		return CatalogStats{}, fmt.Errorf("ping: %w", err)
	}
	stats := CatalogStats{Pool: d.db.Stats()}
	err := d.queryRow(ctx, `SELECT
		 (SELECT COUNT(*) FROM repositories),
		 (SELECT COUNT(*) FROM operations),
		 (SELECT COUNT(*) FROM labels),
		 (SELECT COUNT(*) FROM item_revisions),
		 (SELECT COUNT(*) FROM source_items),
		 (SELECT COUNT(*) FROM accounts)`,
	).Scan(&stats.Repositories, &stats.Operations, &stats.Labels, &stats.ItemRevisions, &stats.LineageEdges, &stats.Accounts)
	if err != nil {
		return CatalogStats{}, err
	}
	return stats, nil
}
