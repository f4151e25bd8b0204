package roster

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:patrolwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{
		db: db,
		upsert: `INSERT INTO roster (id, patrol_id, name, network_type, region, lat, lng)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				patrol_id = excluded.patrol_id,
				name = excluded.name,
				network_type = excluded.network_type,
				region = excluded.region,
				lat = excluded.lat,
				lng = excluded.lng`,
	}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS roster (
			id TEXT PRIMARY KEY,
			patrol_id TEXT NOT NULL,
			name TEXT NOT NULL,
			network_type TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			lat REAL NOT NULL,
			lng REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roster_patrol ON roster(patrol_id)`,
	})
}
