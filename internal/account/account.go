// Package account persists person and collective accounts with versioned
// citizen profiles. Profiles are append-only: saving writes a new version,
// updating an existing version requires ownership.
package account

import (
	"time"

	"github.com/rotisserie/eris"
)

// Kind distinguishes the two login flavors: persons sign in with a username,
// collectives with a CNPJ.
type Kind string

const (
	KindPerson     Kind = "person"
	KindCollective Kind = "collective"
)

// Sentinel errors surfaced to callers as user-visible denials.
var (
	ErrNotOwner           = eris.New("account: profile belongs to another account")
	ErrInvalidCredentials = eris.New("account: invalid credentials")
)

// Account is one registered login.
type Account struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CNPJ        string    `json:"cnpj,omitempty"`
	Contact     string    `json:"contact,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Profile is one saved version of a citizen profile. Data holds the raw
// answer map keyed by profile-schema field names.
type Profile struct {
	ID        int64          `json:"id"`
	OwnerID   int64          `json:"owner_id"`
	Version   int            `json:"version"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EligibilityResult is one stored matching outcome, kept for the account's
// history view.
type EligibilityResult struct {
	ID            int64          `json:"id"`
	OwnerID       int64          `json:"owner_id"`
	ProfileID     int64          `json:"profile_id"`
	DesiredPolicy string         `json:"desired_policy,omitempty"`
	Matched       []PolicyResult `json:"matched"`
	Gaps          []PolicyResult `json:"gaps"`
	CreatedAt     time.Time      `json:"created_at"`
}

// PolicyResult is one policy entry inside a stored eligibility result.
type PolicyResult struct {
	Policy  string   `json:"policy"`
	Met     []string `json:"met,omitempty"`
	Missing []string `json:"missing,omitempty"`
}
