package history

import (
	"database/sql"
	"time"
)

const selectColumns = `
	SELECT id, timestamp, status, path, canonical_path, strategy, duration_ms, error_message
	FROM deletions
`

// Recent returns the N most recent deletions
func (d *DB) Recent(limit int) ([]Record, error) {
	return d.queryRecords(selectColumns+`
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, limit)
}

// ByStatus returns the N most recent deletions with the given status
func (d *DB) ByStatus(status string, limit int) ([]Record, error) {
	return d.queryRecords(selectColumns+`
	WHERE status = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, status, limit)
}

// ByPath returns deletions whose dispatched path matches a LIKE pattern
func (d *DB) ByPath(pathPattern string, limit int) ([]Record, error) {
	return d.queryRecords(selectColumns+`
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, pathPattern, limit)
}

// ByDateRange returns deletions within a time range
func (d *DB) ByDateRange(start, end time.Time) ([]Record, error) {
	return d.queryRecords(selectColumns+`
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	`, start.UTC(), end.UTC())
}

// Stats holds aggregated statistics for a period
type Stats struct {
	Total           int
	Succeeded       int
	Failed          int
	AverageDuration time.Duration
	ByStrategy      map[string]int
	StartDate       time.Time
	EndDate         time.Time
}

// Stats returns aggregated statistics for the last days days
func (d *DB) Stats(days int) (*Stats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &Stats{
		StartDate:  since,
		EndDate:    now,
		ByStrategy: make(map[string]int),
	}

	var avg sql.NullFloat64
	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'ok' THEN 1 END),
			COUNT(CASE WHEN status = 'error' THEN 1 END),
			AVG(duration_ms)
		FROM deletions
		WHERE timestamp >= ?
	`, since.UTC()).Scan(&stats.Total, &stats.Succeeded, &stats.Failed, &avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AverageDuration = time.Duration(avg.Float64 * float64(time.Millisecond))
	}

	rows, err := d.db.Query(`
		SELECT strategy, COUNT(*)
		FROM deletions
		WHERE timestamp >= ?
		GROUP BY strategy
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			return nil, err
		}
		stats.ByStrategy[strategy] = count
	}

	return stats, rows.Err()
}

// DeleteOldRecords removes records older than specified days
func (d *DB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays).UTC()

	result, err := d.db.Exec(`DELETE FROM deletions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (d *DB) queryRecords(query string, args ...any) ([]Record, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var durationMs int64
		var errMsg sql.NullString

		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Status, &r.Path, &r.CanonicalPath,
			&r.Strategy, &durationMs, &errMsg,
		); err != nil {
			return nil, err
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		if errMsg.Valid {
			r.ErrorMessage = errMsg.String
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
