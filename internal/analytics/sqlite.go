package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. A single process-wide
// write lock serializes appends; reads run concurrently.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "analytics: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteTimeLayout is fixed-width so that stored timestamps compare
// lexicographically. RFC3339Nano would strip trailing zeros, making
// "...27.5Z" sort before "...27Z".
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analytics_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ts           TEXT NOT NULL,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "analytics: migrate sqlite")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts one immutable event. A zero TS is stamped with the current
// UTC time.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	ts := e.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	metJSON, missingJSON, extrasJSON, err := marshalEventColumns(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (ts, kind, policy, uf, municipio, query, gender, met_json, missing_json, extras_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(sqliteTimeLayout), string(e.Kind),
		nullable(e.Policy), nullable(e.UF), nullable(e.Municipio),
		nullable(e.Query), nullable(e.Gender),
		metJSON, missingJSON, extrasJSON,
	)
	return eris.Wrap(err, "analytics: insert event")
}

// Query returns events matching the filter, newest-first. Timestamps are
// stored as fixed-width RFC 3339 UTC text, so range predicates and the ts
// ordering compare lexicographically.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `SELECT id, ts, kind, policy, uf, municipio, query, gender, met_json, missing_json, extras_json
	          FROM analytics_events WHERE 1=1`
	var args []any

	if !f.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, f.Since.UTC().Format(sqliteTimeLayout))
	}
	if !f.Until.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, f.Until.UTC().Format(sqliteTimeLayout))
	}
	if f.UF != "" {
		query += ` AND uf = ?`
		args = append(args, f.UF)
	}
	if f.Municipio != "" {
		query += ` AND municipio = ?`
		args = append(args, f.Municipio)
	}
	if f.Gender != "" {
		query += ` AND gender = ?`
		args = append(args, f.Gender)
	}
	query += ` ORDER BY ts DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: query events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                                  Event
			ts                                 string
			policy, uf, mun, q, gender         sql.NullString
			metJSON, missingJSON, extrasJSON   sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &policy, &uf, &mun, &q, &gender,
			&metJSON, &missingJSON, &extrasJSON); err != nil {
			return nil, eris.Wrap(err, "analytics: scan event")
		}
		e.TS, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, eris.Wrapf(err, "analytics: parse ts %q", ts)
		}
		e.Policy, e.UF, e.Municipio = policy.String, uf.String, mun.String
		e.Query, e.Gender = q.String, gender.String
		if err := unmarshalEventColumns(&e, metJSON.String, missingJSON.String, extrasJSON.String); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "analytics: iterate events")
}

// column helpers shared with the postgres store

func marshalEventColumns(e Event) (met, missing, extras any, err error) {
	if e.Met != nil {
		b, err := json.Marshal(e.Met)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "analytics: marshal met")
		}
		met = string(b)
	}
	if e.Missing != nil {
		b, err := json.Marshal(e.Missing)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "analytics: marshal missing")
		}
		missing = string(b)
	}
	if e.Extras != nil {
		b, err := json.Marshal(e.Extras)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "analytics: marshal extras")
		}
		extras = string(b)
	}
	return met, missing, extras, nil
}

func unmarshalEventColumns(e *Event, metJSON, missingJSON, extrasJSON string) error {
	if metJSON != "" {
		if err := json.Unmarshal([]byte(metJSON), &e.Met); err != nil {
			return eris.Wrap(err, "analytics: unmarshal met")
		}
	}
	if missingJSON != "" {
		if err := json.Unmarshal([]byte(missingJSON), &e.Missing); err != nil {
			return eris.Wrap(err, "analytics: unmarshal missing")
		}
	}
	if extrasJSON != "" {
		if err := json.Unmarshal([]byte(extrasJSON), &e.Extras); err != nil {
			return eris.Wrap(err, "analytics: unmarshal extras")
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
