package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsureMonthlyPartitions creates monthly partitions of the events table
// covering [now-1 month, now+ahead months]. Rows outside every monthly range
// land in events_default. Safe to call repeatedly.
func EnsureMonthlyPartitions(ctx context.Context, db *sql.DB, now time.Time, ahead int) error {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	for i := 0; i <= ahead+1; i++ {
		from := start.AddDate(0, i, 0)
		to := from.AddDate(0, 1, 0)
		name := fmt.Sprintf("events_y%04dm%02d", from.Year(), int(from.Month()))
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF events FOR VALUES FROM ('%s') TO ('%s')`,
			name, from.Format("2006-01-02"), to.Format("2006-01-02"),
		)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create partition %s: %w", name, err)
		}
	}
	return nil
}
