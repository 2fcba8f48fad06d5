package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// latestImportQuery expects a connection to the cluster's 'postgres' database.
const latestImportQuery = `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`

// ResolveLatestImportDBName returns the most recently imported GTFS database
// whose name contains city.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	var dbName sql.NullString
	if err := meta.QueryRowContext(ctx, latestImportQuery, city).Scan(&dbName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no database found for city like %q", city)
		}
		return "", fmt.Errorf("resolve import for %q: %w", city, err)
	}
	if !dbName.Valid || dbName.String == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return dbName.String, nil
}

// OpenForCity connects to baseDSN, or, when city is set, to the latest
// import for that city found via the meta database on the same cluster.
func OpenForCity(ctx context.Context, baseDSN, city string) (*sql.DB, string, error) {
	finalDSN := baseDSN
	name := ""
	if city != "" {
		rootDSN, err := WithDBName(baseDSN, "postgres")
		if err != nil {
			return nil, "", fmt.Errorf("invalid base DSN: %w", err)
		}
		meta, err := Open(rootDSN)
		if err != nil {
			return nil, "", fmt.Errorf("db open (meta): %w", err)
		}
		defer meta.Close()
		if err := Ping(ctx, meta); err != nil {
			return nil, "", fmt.Errorf("db ping (meta): %w", err)
		}
		name, err = ResolveLatestImportDBName(ctx, meta, city)
		if err != nil {
			return nil, "", err
		}
		if finalDSN, err = WithDBName(baseDSN, name); err != nil {
			return nil, "", fmt.Errorf("compose DSN: %w", err)
		}
	}

	conn, err := Open(finalDSN)
	if err != nil {
		return nil, "", fmt.Errorf("db open: %w", err)
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("db ping: %w", err)
	}
	return conn, name, nil
}
