package roster

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/patrolwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{
		db: db,
		upsert: `INSERT INTO roster (id, patrol_id, name, network_type, region, lat, lng)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				patrol_id = EXCLUDED.patrol_id,
				name = EXCLUDED.name,
				network_type = EXCLUDED.network_type,
				region = EXCLUDED.region,
				lat = EXCLUDED.lat,
				lng = EXCLUDED.lng`,
	}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS roster (
			id TEXT PRIMARY KEY,
			patrol_id TEXT NOT NULL,
			name TEXT NOT NULL,
			network_type TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roster_patrol ON roster(patrol_id)`,
	})
}
