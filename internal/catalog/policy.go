// Package catalog loads and queries the public-policy catalogue. The
// catalogue is read once at process start and treated as read-only; the row
// index is the stable policy identifier for the session.
package catalog

import (
	"sort"
	"strings"
)

// Policy is one catalogue entry. Access holds the free-text requirements and
// is the only field the requirement matcher reads.
type Policy struct {
	Index        int    `json:"index"`
	Number       string `json:"number,omitempty"`
	Title        string `json:"title"`
	Level        string `json:"level,omitempty"`
	Operation    string `json:"operation,omitempty"`
	Rights       string `json:"rights,omitempty"`
	Access       string `json:"access,omitempty"`
	Organization string `json:"organization,omitempty"`
	Link         string `json:"link,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Catalog is an immutable, index-addressable list of policies.
type Catalog struct {
	policies []Policy
}

// Policies returns all entries in row order.
func (c *Catalog) Policies() []Policy { return c.policies }

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.policies) }

// Get returns the policy at the given row index.
func (c *Catalog) Get(index int) (Policy, bool) {
	if index < 0 || index >= len(c.policies) {
		return Policy{}, false
	}
	return c.policies[index], true
}

// AccessTexts returns the requirement text of every policy, indexed by row.
func (c *Catalog) AccessTexts() []string {
	texts := make([]string, len(c.policies))
	for i, p := range c.policies {
		texts[i] = p.Access
	}
	return texts
}

// Levels returns the distinct non-empty government levels, sorted.
func (c *Catalog) Levels() []string {
	set := make(map[string]struct{})
	for _, p := range c.policies {
		if p.Level != "" {
			set[p.Level] = struct{}{}
		}
	}
	levels := make([]string, 0, len(set))
	for l := range set {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	return levels
}

// Filter returns policies whose searchable text contains the query
// (case-insensitive) and whose level is in levels (empty = all), truncated
// to limit (<=0 = no limit). Row order is preserved.
func (c *Catalog) Filter(query string, levels []string, limit int) []Policy {
	q := strings.ToLower(strings.TrimSpace(query))
	levelSet := make(map[string]struct{}, len(levels))
	for _, l := range levels {
		levelSet[l] = struct{}{}
	}

	var out []Policy
	for _, p := range c.policies {
		if len(levelSet) > 0 {
			if _, ok := levelSet[p.Level]; !ok {
				continue
			}
		}
		if q != "" && !p.contains(q) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// contains reports whether any searchable field contains the lowercased query.
func (p *Policy) contains(q string) bool {
	for _, field := range []string{p.Title, p.Rights, p.Access, p.Organization} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
