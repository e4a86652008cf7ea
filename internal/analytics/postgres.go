package analytics

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool. Postgres serializes the
// inserts itself, so no process-wide write lock is needed here.
type PostgresStore struct {
	pool Pool
}

const insertEventSQL = `INSERT INTO analytics_events
	(ts, kind, policy, uf, municipio, query, gender, met_json, missing_json, extras_json)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: parse postgres config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// The append path is the hot one; prepare it on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Prepare(ctx, "insert_event", insertEventSQL); err != nil {
			return eris.Wrap(err, "analytics: prepare insert_event")
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "analytics: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analytics_events (
	id           BIGSERIAL PRIMARY KEY,
	ts           TIMESTAMPTZ NOT NULL,
	kind         TEXT NOT NULL,
	policy       TEXT,
	uf           TEXT,
	municipio    TEXT,
	query        TEXT,
	gender       TEXT,
	met_json     TEXT,
	missing_json TEXT,
	extras_json  TEXT
);

CREATE INDEX IF NOT EXISTS idx_analytics_events_ts ON analytics_events(ts);
CREATE INDEX IF NOT EXISTS idx_analytics_events_kind ON analytics_events(kind);
CREATE INDEX IF NOT EXISTS idx_analytics_events_uf ON analytics_events(uf);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "analytics: migrate postgres")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	ts := e.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	metJSON, missingJSON, extrasJSON, err := marshalEventColumns(e)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, insertEventSQL,
		ts.UTC(), string(e.Kind),
		nullable(e.Policy), nullable(e.UF), nullable(e.Municipio),
		nullable(e.Query), nullable(e.Gender),
		metJSON, missingJSON, extrasJSON,
	)
	return eris.Wrap(err, "analytics: insert event")
}

func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `SELECT id, ts, kind, policy, uf, municipio, query, gender, met_json, missing_json, extras_json
	          FROM analytics_events WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !f.Since.IsZero() {
		query += ` AND ts >= ` + arg(f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += ` AND ts <= ` + arg(f.Until.UTC())
	}
	if f.UF != "" {
		query += ` AND uf = ` + arg(f.UF)
	}
	if f.Municipio != "" {
		query += ` AND municipio = ` + arg(f.Municipio)
	}
	if f.Gender != "" {
		query += ` AND gender = ` + arg(f.Gender)
	}
	query += ` ORDER BY ts DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: query events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                                Event
			policy, uf, mun, q, gender       sql.NullString
			metJSON, missingJSON, extrasJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.Kind, &policy, &uf, &mun, &q, &gender,
			&metJSON, &missingJSON, &extrasJSON); err != nil {
			return nil, eris.Wrap(err, "analytics: scan event")
		}
		e.TS = e.TS.UTC()
		e.Policy, e.UF, e.Municipio = policy.String, uf.String, mun.String
		e.Query, e.Gender = q.String, gender.String
		if err := unmarshalEventColumns(&e, metJSON.String, missingJSON.String, extrasJSON.String); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "analytics: iterate events")
}
