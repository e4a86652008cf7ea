// Package analytics records observatory events and aggregates them into
// rankings and geographic heat data. Events are append-only: created at the
// moment of a user action and never updated or deleted.
package analytics

import "time"

// Kind classifies an event by the user action that produced it.
type Kind string

const (
	KindSearch   Kind = "search"   // catalogue search submitted
	KindView     Kind = "view"     // policy detail opened
	KindMatches  Kind = "matches"  // eligibility computed for a profile
	KindEligible Kind = "eligible" // one fully eligible policy found
)

// Event is one immutable analytics log entry. Met and Missing are only
// populated for matches events; Extras carries auxiliary counts such as
// eligible_cnt and nearly_cnt.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	TS        time.Time      `json:"ts"`
	Kind      Kind           `json:"kind"`
	Policy    string         `json:"policy,omitempty"`
	UF        string         `json:"uf,omitempty"`
	Municipio string         `json:"municipio,omitempty"`
	Query     string         `json:"query,omitempty"`
	Gender    string         `json:"gender,omitempty"`
	Met       []string       `json:"met,omitempty"`
	Missing   []string       `json:"missing,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// Filter restricts an event query. Zero values match everything on that
// dimension.
type Filter struct {
	Since     time.Time `json:"since,omitempty"`
	Until     time.Time `json:"until,omitempty"`
	UF        string    `json:"uf,omitempty"`
	Municipio string    `json:"municipio,omitempty"`
	Gender    string    `json:"gender,omitempty"`
}

// GeoFiltered reports whether a geographic dimension is constrained; the
// aggregator collapses ranking group keys to the non-geo columns in that case.
func (f Filter) GeoFiltered() bool {
	return f.UF != "" || f.Municipio != ""
}
