// Package roster keeps the inventory of patrol units: who they are, which
// patrol they belong to and where they were deployed. Live readings are
// never written here.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"patrolwatch/internal/config"
	"patrolwatch/internal/model"
)

var ErrUnsupportedDriver = errors.New("unsupported roster driver")

type Store interface {
	Init(ctx context.Context) error
	Close() error
	Save(ctx context.Context, entries []model.RosterEntry) error
	Load(ctx context.Context) ([]model.RosterEntry, error)
	Count(ctx context.Context) (int, error)
}

// NewStore returns nil when the roster is disabled.
func NewStore(cfg config.RosterConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// baseStore holds the statements both drivers share; only the upsert
// placeholder syntax differs.
type baseStore struct {
	db     *sql.DB
	upsert string
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Save(ctx context.Context, entries []model.RosterEntry) error {
	if b.db == nil || len(entries) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, b.upsert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			_ = tx.Rollback()
			return errors.New("roster entry without id")
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID,
			e.PatrolID,
			e.Name,
			string(e.NetworkType),
			e.Region,
			e.Lat,
			e.Lng,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (b *baseStore) Load(ctx context.Context) ([]model.RosterEntry, error) {
	if b.db == nil {
		return nil, nil
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, patrol_id, name, network_type, region, lat, lng FROM roster ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RosterEntry, 0)
	for rows.Next() {
		var e model.RosterEntry
		var network string
		if err := rows.Scan(&e.ID, &e.PatrolID, &e.Name, &network, &e.Region, &e.Lat, &e.Lng); err != nil {
			return nil, err
		}
		if network != "" {
			nt, ok := model.ParseNetworkType(network)
			if !ok {
				return nil, fmt.Errorf("roster entry %s: unknown network type %q", e.ID, network)
			}
			e.NetworkType = nt
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *baseStore) Count(ctx context.Context) (int, error) {
	if b.db == nil {
		return 0, nil
	}
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roster`).Scan(&n)
	return n, err
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
