package pricedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// ImportEntry is one row of the import log.
type ImportEntry struct {
	ID             int64      `json:"id"`
	RunID          string     `json:"run_id"`
	ImportDate     time.Time  `json:"import_date"`
	Mode           string     `json:"mode"`
	RecordsFetched int        `json:"records_fetched"`
	Stats          SyncStats  `json:"stats"`
	RangeStart     *time.Time `json:"date_range_start,omitempty"`
	RangeEnd       *time.Time `json:"date_range_end,omitempty"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

func optionalTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

// LogImport records the outcome of a sync run.
func (s *Store) LogImport(ctx context.Context, e ImportEntry) error {
	if e.Status == "" {
		e.Status = StatusSuccess
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_log (
			run_id, import_date, mode, records_fetched, records_inserted, records_updated,
			records_skipped, records_errored, date_range_start, date_range_end, status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		nullString(e.RunID), time.Now().UTC(), nullString(e.Mode), e.RecordsFetched,
		e.Stats.Inserted, e.Stats.Updated, e.Stats.Skipped, e.Stats.Errors,
		optionalTime(e.RangeStart), optionalTime(e.RangeEnd), e.Status, nullString(e.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to write import log: %w", err)
	}
	s.log.Debug("import logged", zap.String("run_id", e.RunID), zap.String("status", e.Status))
	return nil
}

// LastSyncDate returns the end of the date range covered by the most recent
// successful import. ok is false when no successful import with a range exists.
func (s *Store) LastSyncDate(ctx context.Context) (time.Time, bool, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT date_range_end FROM import_log
		WHERE status = $1 AND date_range_end IS NOT NULL
		ORDER BY import_date DESC, id DESC
		LIMIT 1`,
		StatusSuccess,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last sync date: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	t := last.Time.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true, nil
}

// RecentImports returns up to limit import log rows, newest first.
func (s *Store) RecentImports(ctx context.Context, limit int) ([]ImportEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, import_date, mode, records_fetched, records_inserted, records_updated,
			records_skipped, records_errored, date_range_start, date_range_end, status, error_message
		FROM import_log
		ORDER BY import_date DESC, id DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query import log: %w", err)
	}
	defer rows.Close()

	var entries []ImportEntry
	for rows.Next() {
		var (
			e                      ImportEntry
			runID, mode, errMsg    sql.NullString
			importDate             sql.NullTime
			rangeStart, rangeEnd   sql.NullTime
			fetched                sql.NullInt64
			ins, upd, skip, errCnt sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &runID, &importDate, &mode, &fetched, &ins, &upd,
			&skip, &errCnt, &rangeStart, &rangeEnd, &e.Status, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan import log row: %w", err)
		}
		e.RunID = runID.String
		e.Mode = mode.String
		e.ErrorMessage = errMsg.String
		e.ImportDate = importDate.Time
		e.RecordsFetched = int(fetched.Int64)
		e.Stats = SyncStats{
			Inserted: int(ins.Int64),
			Updated:  int(upd.Int64),
			Skipped:  int(skip.Int64),
			Errors:   int(errCnt.Int64),
		}
		if rangeStart.Valid {
			t := rangeStart.Time
			e.RangeStart = &t
		}
		if rangeEnd.Valid {
			t := rangeEnd.Time
			e.RangeEnd = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
