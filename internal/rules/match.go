package rules

import (
	"strings"

	"github.com/redecaete/matupiri/internal/textnorm"
)

// Match scans the requirement text for every rule keyword and evaluates the
// rules that fire. Labels are appended in rule-map file order; duplicate
// labels across distinct rules are not deduplicated. Rules whose keyword does
// not occur contribute to neither list.
func (m *Map) Match(requirementText string, profile Profile) (met, missing []string) {
	req := textnorm.Normalize(requirementText)
	for i := range m.rules {
		r := &m.rules[i]
		if !strings.Contains(req, r.Key) {
			continue
		}
		if r.Evaluate(profile[r.Field]) {
			met = append(met, r.Label)
		} else {
			missing = append(missing, r.Label)
		}
	}
	return met, missing
}

// PolicyMatch pairs a policy row index with the labels of its fired rules.
type PolicyMatch struct {
	Index   int      `json:"index"`
	Met     []string `json:"met"`
	Missing []string `json:"missing"`
}

// Classify evaluates every access text against the profile and splits the
// policies into fully eligible (at least one rule fired, none missing) and
// nearly eligible (at least one rule fired, some missing). Policies whose
// text fires no rule, or whose access text is empty, appear in neither set.
func (m *Map) Classify(accessTexts []string, profile Profile) (eligible, nearly []PolicyMatch) {
	for idx, access := range accessTexts {
		if access == "" {
			continue
		}
		met, missing := m.Match(access, profile)
		if len(met) == 0 && len(missing) == 0 {
			continue
		}
		pm := PolicyMatch{Index: idx, Met: met, Missing: missing}
		if len(missing) == 0 {
			eligible = append(eligible, pm)
		} else {
			nearly = append(nearly, pm)
		}
	}
	return eligible, nearly
}
