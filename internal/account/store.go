package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Store persists accounts, profiles, and eligibility results in SQLite.
// Writes share one process-wide lock; reads run concurrently.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens the account database and configures WAL mode.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "account: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "account: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS accounts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	kind          TEXT NOT NULL CHECK(kind IN ('person','collective')),
	username      TEXT UNIQUE,
	display_name  TEXT,
	cnpj          TEXT UNIQUE,
	contact       TEXT,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_account_id INTEGER NOT NULL REFERENCES accounts(id),
	profile_json     TEXT NOT NULL,
	version          INTEGER NOT NULL DEFAULT 1,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_owner ON profiles(owner_account_id);

CREATE TABLE IF NOT EXISTS eligibility_results (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_account_id      INTEGER NOT NULL REFERENCES accounts(id),
	profile_id            INTEGER NOT NULL,
	desired_policy        TEXT,
	matched_policies_json TEXT,
	gaps_json             TEXT,
	created_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_eligibility_owner ON eligibility_results(owner_account_id);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "account: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreatePerson registers a person account keyed by username.
func (s *Store) CreatePerson(ctx context.Context, name, username, password string) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (kind, username, display_name, password_hash, created_at)
		 VALUES ('person', ?, ?, ?, ?)`,
		username, name, hash, nowISO())
	if err != nil {
		return 0, eris.Wrap(err, "account: create person")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "account: last insert id")
}

// CreateCollective registers a collective account keyed by CNPJ.
func (s *Store) CreateCollective(ctx context.Context, cnpj, contact, password string) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (kind, cnpj, contact, password_hash, created_at)
		 VALUES ('collective', ?, ?, ?, ?)`,
		cnpj, contact, hash, nowISO())
	if err != nil {
		return 0, eris.Wrap(err, "account: create collective")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "account: last insert id")
}

// AuthenticatePerson verifies a username/password pair. A missing account and
// a wrong password both return ErrInvalidCredentials.
func (s *Store) AuthenticatePerson(ctx context.Context, username, password string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, password_hash, created_at
		 FROM accounts WHERE kind='person' AND username = ?`, username)
	return s.authenticate(row, password, KindPerson)
}

// AuthenticateCollective verifies a CNPJ/password pair.
func (s *Store) AuthenticateCollective(ctx context.Context, cnpj, password string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cnpj, contact, password_hash, created_at
		 FROM accounts WHERE kind='collective' AND cnpj = ?`, cnpj)
	return s.authenticate(row, password, KindCollective)
}

func (s *Store) authenticate(row *sql.Row, password string, kind Kind) (*Account, error) {
	var (
		acct         Account
		login, extra sql.NullString
		hash         string
		created      string
	)
	err := row.Scan(&acct.ID, &login, &extra, &hash, &created)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, eris.Wrap(err, "account: scan account")
	}
	if !VerifyPassword(password, hash) {
		return nil, ErrInvalidCredentials
	}

	acct.Kind = kind
	if kind == KindPerson {
		acct.Username, acct.DisplayName = login.String, extra.String
	} else {
		acct.CNPJ, acct.Contact = login.String, extra.String
	}
	acct.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, eris.Wrapf(err, "account: parse created_at %q", created)
	}
	return &acct, nil
}

// SaveProfile stores a new profile version for the owner. The version is one
// past the owner's current maximum.
func (s *Store) SaveProfile(ctx context.Context, ownerID int64, data map[string]any) (int64, error) {
	blob, err := json.Marshal(data)
	if err != nil {
		return 0, eris.Wrap(err, "account: marshal profile")
	}
	now := nowISO()

	s.mu.Lock()
	defer s.mu.Unlock()
	var last int
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM profiles WHERE owner_account_id = ?`,
		ownerID).Scan(&last)
	if err != nil {
		return 0, eris.Wrap(err, "account: max version")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (owner_account_id, profile_json, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ownerID, string(blob), last+1, now, now)
	if err != nil {
		return 0, eris.Wrap(err, "account: insert profile")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "account: last insert id")
}

// UpdateProfile rewrites an existing profile version in place. Returns
// ErrNotOwner when the profile exists but belongs to another account.
func (s *Store) UpdateProfile(ctx context.Context, profileID, ownerID int64, data map[string]any) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "account: marshal profile")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var owner int64
	err = s.db.QueryRowContext(ctx,
		`SELECT owner_account_id FROM profiles WHERE id = ?`, profileID).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrNotOwner
	}
	if err != nil {
		return eris.Wrap(err, "account: load profile owner")
	}
	if owner != ownerID {
		return ErrNotOwner
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE profiles SET profile_json = ?, updated_at = ? WHERE id = ?`,
		string(blob), nowISO(), profileID)
	return eris.Wrap(err, "account: update profile")
}

// ListProfiles returns the owner's profile versions, newest version first.
// Data is not populated; use LoadProfile for the full answer map.
func (s *Store) ListProfiles(ctx context.Context, ownerID int64) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, created_at, updated_at
		 FROM profiles WHERE owner_account_id = ? ORDER BY version DESC`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "account: list profiles")
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p := Profile{OwnerID: ownerID}
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Version, &created, &updated); err != nil {
			return nil, eris.Wrap(err, "account: scan profile")
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, eris.Wrapf(err, "account: parse created_at %q", created)
		}
		if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, eris.Wrapf(err, "account: parse updated_at %q", updated)
		}
		profiles = append(profiles, p)
	}
	return profiles, eris.Wrap(rows.Err(), "account: iterate profiles")
}

// LoadProfile returns the answer map of one profile version. A missing
// profile loads as an empty map.
func (s *Store) LoadProfile(ctx context.Context, profileID int64) (map[string]any, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile_json FROM profiles WHERE id = ?`, profileID).Scan(&blob)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "account: load profile")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, eris.Wrap(err, "account: unmarshal profile")
	}
	return data, nil
}

// SaveEligibility stores one matching outcome in the account's history.
func (s *Store) SaveEligibility(ctx context.Context, r EligibilityResult) (int64, error) {
	matched, err := json.Marshal(r.Matched)
	if err != nil {
		return 0, eris.Wrap(err, "account: marshal matched")
	}
	gaps, err := json.Marshal(r.Gaps)
	if err != nil {
		return 0, eris.Wrap(err, "account: marshal gaps")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO eligibility_results
		 (owner_account_id, profile_id, desired_policy, matched_policies_json, gaps_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.OwnerID, r.ProfileID, r.DesiredPolicy, string(matched), string(gaps), nowISO())
	if err != nil {
		return 0, eris.Wrap(err, "account: insert eligibility")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "account: last insert id")
}
