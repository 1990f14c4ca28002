// Package analytics optionally mirrors daily IngestLog and
// GoalItemMatch aggregates into Snowflake for BI dashboards. It is
// read-only against SentryCore's own Postgres tables and sits off the
// hot path entirely: nothing in the ingest/match/decision pipeline
// depends on this package, grounded on the teacher's internal/snowflake
// client (the same DSN-building, sql.Open("snowflake", ...) pattern).
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// Config holds the Snowflake connection parameters.
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string
	Schema    string
	Warehouse string
}

func (c Config) dsn() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", c.Username, c.Password, c.Account, c.Database, c.Schema)
	if c.Warehouse != "" {
		dsn += "?warehouse=" + c.Warehouse
	}
	return dsn
}

// Exporter reads aggregates out of Postgres and mirrors them into
// Snowflake's SENTRYCORE_INGEST_DAILY / SENTRYCORE_MATCH_DAILY tables.
type Exporter struct {
	pg *sql.DB
	sf *sql.DB
}

// NewExporter opens the Snowflake connection. pg is SentryCore's own
// Postgres handle; the export reads from it directly rather than
// through the repository layer since these are ad hoc aggregate
// queries, not domain operations.
func NewExporter(pg *sql.DB, cfg Config) (*Exporter, error) {
	sf, err := sql.Open("snowflake", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("analytics: open snowflake: %w", err)
	}
	sf.SetMaxOpenConns(5)
	sf.SetMaxIdleConns(2)
	sf.SetConnMaxLifetime(5 * time.Minute)

	return &Exporter{pg: pg, sf: sf}, nil
}

// Close closes the Snowflake connection.
func (e *Exporter) Close() error { return e.sf.Close() }

// ingestDailyRow is one source's aggregate activity for a calendar day.
type ingestDailyRow struct {
	sourceID     string
	day          time.Time
	itemsFetched int64
	itemsNew     int64
	itemsDup     int64
	failures     int64
}

// matchDailyRow is one goal's aggregate match activity for a day.
type matchDailyRow struct {
	goalID    string
	day       time.Time
	matches   int64
	avgScore  float64
	maxScore  float64
}

// ExportDay mirrors the given UTC calendar day's IngestLog and
// GoalItemMatch aggregates into Snowflake. Intended to run once nightly
// for the previous completed day.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)

	ingestRows, err := e.collectIngestDaily(ctx, day)
	if err != nil {
		return fmt.Errorf("analytics: collect ingest aggregates: %w", err)
	}
	matchRows, err := e.collectMatchDaily(ctx, day)
	if err != nil {
		return fmt.Errorf("analytics: collect match aggregates: %w", err)
	}

	if err := e.writeIngestDaily(ctx, ingestRows); err != nil {
		return fmt.Errorf("analytics: write ingest aggregates: %w", err)
	}
	if err := e.writeMatchDaily(ctx, matchRows); err != nil {
		return fmt.Errorf("analytics: write match aggregates: %w", err)
	}

	logger.Info("analytics: export complete", "day", day.Format("2006-01-02"),
		"ingest_rows", len(ingestRows), "match_rows", len(matchRows))
	return nil
}

func (e *Exporter) collectIngestDaily(ctx context.Context, day time.Time) ([]ingestDailyRow, error) {
	rows, err := e.pg.QueryContext(ctx, `
		SELECT source_id,
		       COALESCE(SUM(items_fetched), 0),
		       COALESCE(SUM(items_new), 0),
		       COALESCE(SUM(items_duplicate), 0),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM ingest_logs
		WHERE started_at >= $1 AND started_at < $2
		GROUP BY source_id
	`, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ingestDailyRow
	for rows.Next() {
		var r ingestDailyRow
		r.day = day
		if err := rows.Scan(&r.sourceID, &r.itemsFetched, &r.itemsNew, &r.itemsDup, &r.failures); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *Exporter) collectMatchDaily(ctx context.Context, day time.Time) ([]matchDailyRow, error) {
	rows, err := e.pg.QueryContext(ctx, `
		SELECT goal_id, COUNT(*), AVG(match_score), MAX(match_score)
		FROM goal_item_matches
		WHERE computed_at >= $1 AND computed_at < $2
		GROUP BY goal_id
	`, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []matchDailyRow
	for rows.Next() {
		var r matchDailyRow
		r.day = day
		if err := rows.Scan(&r.goalID, &r.matches, &r.avgScore, &r.maxScore); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *Exporter) writeIngestDaily(ctx context.Context, rows []ingestDailyRow) error {
	for _, r := range rows {
		_, err := e.sf.ExecContext(ctx, `
			INSERT INTO SENTRYCORE_INGEST_DAILY
				(SOURCE_ID, DAY, ITEMS_FETCHED, ITEMS_NEW, ITEMS_DUP, FAILURES)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.sourceID, r.day, r.itemsFetched, r.itemsNew, r.itemsDup, r.failures)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeMatchDaily(ctx context.Context, rows []matchDailyRow) error {
	for _, r := range rows {
		_, err := e.sf.ExecContext(ctx, `
			INSERT INTO SENTRYCORE_MATCH_DAILY
				(GOAL_ID, DAY, MATCH_COUNT, AVG_SCORE, MAX_SCORE)
			VALUES (?, ?, ?, ?, ?)
		`, r.goalID, r.day, r.matches, r.avgScore, r.maxScore)
		if err != nil {
			return err
		}
	}
	return nil
}
