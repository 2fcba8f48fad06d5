package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"validation-generator/internal/gtfs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// one streaming query at a time
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// stopTimesQuery orders by trip then stop_sequence so each trip's stops are
// appended in schedule order, matching a stop_times.txt export.
const stopTimesQuery = `
SELECT COALESCE(trip_id::text, ''),
       COALESCE(arrival_time::text, ''),
       COALESCE(stop_id::text, '')
FROM stop_times
ORDER BY trip_id, stop_sequence`

// StreamStopTimes hands every stop_times row to fn without buffering the
// table. It stops at the first error returned by fn.
func StreamStopTimes(ctx context.Context, db *sql.DB, fn func(gtfs.StopTimeRow) error) error {
	rows, err := db.QueryContext(ctx, stopTimesQuery)
	if err != nil {
		return fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r gtfs.StopTimeRow
		if err := rows.Scan(&r.TripID, &r.ArrivalTime, &r.StopID); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
