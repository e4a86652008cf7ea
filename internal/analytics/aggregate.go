package analytics

import (
	"sort"
	"strings"
)

// Metric selects which observatory rollup to compute.
type Metric string

const (
	MetricViews       Metric = "views"         // políticas mais acessadas
	MetricEligible    Metric = "eligible"      // políticas mais adequadas
	MetricReqMissing  Metric = "req_missing"   // requisitos mais ausentes
	MetricReqPresent  Metric = "req_present"   // requisitos mais presentes
	MetricReqByGender Metric = "req_by_gender" // políticas mais requeridas por gênero
)

// ParseMetric validates a metric code.
func ParseMetric(s string) (Metric, bool) {
	switch m := Metric(s); m {
	case MetricViews, MetricEligible, MetricReqMissing, MetricReqPresent, MetricReqByGender:
		return m, true
	}
	return "", false
}

// RankingRow is one grouped count. Only the fields belonging to the metric's
// group key are populated; geo fields are empty when a geo filter collapsed
// the grouping.
type RankingRow struct {
	UF        string `json:"uf,omitempty"`
	Municipio string `json:"municipio,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Policy    string `json:"policy,omitempty"`
	Item      string `json:"item,omitempty"` // exploded met/missing label
	Count     int    `json:"count"`
}

// HeatCell is a geography-keyed weight for the heat-map layer. Lat/Lon are
// attached by the geo join; nil until resolved.
type HeatCell struct {
	UF        string   `json:"uf"`
	Municipio string   `json:"municipio,omitempty"`
	Weight    int      `json:"weight"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
}

// Result is one observatory rollup: a ranking table plus the heat-map source.
type Result struct {
	Metric     Metric       `json:"metric"`
	Ranking    []RankingRow `json:"ranking"`
	CountLabel string       `json:"count_label"`
	Heat       []HeatCell   `json:"heat"`
	HeatLabel  string       `json:"heat_label"`
	// HeatFromSearches marks that the metric's subset was empty and the heat
	// layer fell back to search events.
	HeatFromSearches bool `json:"heat_from_searches,omitempty"`
}

// Aggregate groups the (already filtered) events into a ranking for the
// metric and a (uf, municipio) heat source. geoFiltered collapses ranking
// group keys to the non-geo columns, mirroring a dashboard that has zoomed
// into one locality. topN <= 0 means no truncation.
//
// The heat source always counts events of the metric's subset per locality,
// independent of the exploded dimension: it answers "where did this activity
// occur", not "which item". An empty subset falls back to search events; if
// those are absent too, Heat is empty and no map should be drawn.
func Aggregate(events []Event, metric Metric, topN int, geoFiltered bool) Result {
	res := Result{Metric: metric}

	// Column layouts for mapping composite keys back onto named row fields.
	policyRow := func(parts []string, count int) RankingRow {
		r := RankingRow{Count: count}
		if !geoFiltered {
			r.UF, r.Municipio, parts = parts[0], parts[1], parts[2:]
		}
		r.Policy = parts[0]
		return r
	}
	itemRow := func(parts []string, count int) RankingRow {
		r := RankingRow{Count: count}
		if !geoFiltered {
			r.UF, r.Municipio, parts = parts[0], parts[1], parts[2:]
		}
		r.Item = parts[0]
		return r
	}
	genderPolicyRow := func(parts []string, count int) RankingRow {
		r := RankingRow{Count: count}
		if !geoFiltered {
			r.UF, r.Municipio, parts = parts[0], parts[1], parts[2:]
		}
		r.Gender, r.Policy = parts[0], parts[1]
		return r
	}

	var subset []Event
	switch metric {
	case MetricViews:
		subset = filterKind(events, KindView)
		res.CountLabel, res.HeatLabel = "acessos", "Acessos"
		res.Ranking = rank(groupEvents(subset, geoFiltered, func(e Event) []string {
			return []string{e.Policy}
		}), topN, policyRow)
	case MetricEligible:
		subset = filterKind(events, KindEligible)
		res.CountLabel, res.HeatLabel = "adequacoes", "Adequações"
		res.Ranking = rank(groupEvents(subset, geoFiltered, func(e Event) []string {
			return []string{e.Policy}
		}), topN, policyRow)
	case MetricReqMissing:
		subset = matchesWith(events, func(e Event) []string { return e.Missing })
		res.CountLabel, res.HeatLabel = "ocorrencias", "Ocorrências"
		res.Ranking = rank(explode(subset, geoFiltered, func(e Event) []string { return e.Missing }), topN, itemRow)
	case MetricReqPresent:
		subset = matchesWith(events, func(e Event) []string { return e.Met })
		res.CountLabel, res.HeatLabel = "ocorrencias", "Ocorrências"
		res.Ranking = rank(explode(subset, geoFiltered, func(e Event) []string { return e.Met }), topN, itemRow)
	case MetricReqByGender:
		subset = filterKind(events, KindView)
		res.CountLabel, res.HeatLabel = "requeridas", "Requisições"
		res.Ranking = rank(groupEvents(subset, geoFiltered, func(e Event) []string {
			return []string{e.Gender, e.Policy}
		}), topN, genderPolicyRow)
	default:
		return res
	}

	res.Heat = heatSource(subset)
	if len(res.Heat) == 0 {
		if fallback := heatSource(filterKind(events, KindSearch)); len(fallback) > 0 {
			res.Heat = fallback
			res.HeatLabel = "Buscas"
			res.HeatFromSearches = true
		}
	}
	return res
}

func filterKind(events []Event, kind Kind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// matchesWith selects matches events whose chosen label list is non-empty.
func matchesWith(events []Event, labels func(Event) []string) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == KindMatches && len(labels(e)) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// group is an accumulated count keyed by its group-by column values.
type group struct {
	parts []string
	count int
}

const keySep = "\x1f"

// accumulate counts rows per composite key. Rows with an empty component are
// skipped, the way a dataframe group-by drops null keys.
type accumulator map[string]*group

func (a accumulator) add(parts []string, n int) {
	for _, p := range parts {
		if p == "" {
			return
		}
	}
	k := strings.Join(parts, keySep)
	g, ok := a[k]
	if !ok {
		g = &group{parts: append([]string(nil), parts...)}
		a[k] = g
	}
	g.count += n
}

// groupEvents counts one row per event, keyed by (uf, municipio, extra...)
// or just (extra...) when geo-filtered.
func groupEvents(events []Event, geoFiltered bool, extra func(Event) []string) accumulator {
	acc := make(accumulator)
	for _, e := range events {
		parts := extra(e)
		if !geoFiltered {
			parts = append([]string{e.UF, e.Municipio}, parts...)
		}
		acc.add(parts, 1)
	}
	return acc
}

// explode contributes one row per list item: an event with N items in its
// met/missing list adds one count to each of the N item groups.
func explode(events []Event, geoFiltered bool, items func(Event) []string) accumulator {
	acc := make(accumulator)
	for _, e := range events {
		for _, item := range items(e) {
			parts := []string{item}
			if !geoFiltered {
				parts = append([]string{e.UF, e.Municipio}, parts...)
			}
			acc.add(parts, 1)
		}
	}
	return acc
}

// rank sorts groups by count descending, ties broken by natural group-key
// order, truncates to topN, and maps keys onto named row columns.
func rank(acc accumulator, topN int, mapRow func([]string, int) RankingRow) []RankingRow {
	groups := make([]*group, 0, len(acc))
	for _, g := range acc {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return strings.Join(groups[i].parts, keySep) < strings.Join(groups[j].parts, keySep)
	})
	if topN > 0 && len(groups) > topN {
		groups = groups[:topN]
	}

	rows := make([]RankingRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, mapRow(g.parts, g.count))
	}
	return rows
}

// heatSource groups events by (uf, municipio) with weight = event count.
func heatSource(events []Event) []HeatCell {
	acc := make(accumulator)
	for _, e := range events {
		acc.add([]string{e.UF, e.Municipio}, 1)
	}
	cells := make([]HeatCell, 0, len(acc))
	for _, g := range acc {
		cells = append(cells, HeatCell{UF: g.parts[0], Municipio: g.parts[1], Weight: g.count})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].UF != cells[j].UF {
			return cells[i].UF < cells[j].UF
		}
		return cells[i].Municipio < cells[j].Municipio
	})
	return cells
}
