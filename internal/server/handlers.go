package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/redecaete/matupiri/internal/account"
	"github.com/redecaete/matupiri/internal/analytics"
	"github.com/redecaete/matupiri/internal/catalog"
	"github.com/redecaete/matupiri/internal/geo"
	"github.com/redecaete/matupiri/internal/rules"
)

// geoParams are the caller's locality, attached to recorded events.
type geoParams struct {
	UF        string `json:"uf,omitempty"`
	Municipio string `json:"municipio,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

func geoFromQuery(r *http.Request) geoParams {
	q := r.URL.Query()
	return geoParams{
		UF:        q.Get("uf"),
		Municipio: q.Get("municipio"),
		Gender:    q.Get("gender"),
	}
}

// handleListPolicies filters the catalogue. A non-empty q records a search
// event; the browse itself is not an analytics signal.
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	var levels []string
	if lv := q.Get("levels"); lv != "" {
		levels = strings.Split(lv, ",")
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	policies := s.catalog.Filter(query, levels, limit)

	if query != "" {
		g := geoFromQuery(r)
		_ = s.recorder.Record(r.Context(), analytics.Event{
			Kind:      analytics.KindSearch,
			Query:     query,
			UF:        g.UF,
			Municipio: g.Municipio,
			Gender:    g.Gender,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"levels":   s.catalog.Levels(),
		"total":    s.catalog.Len(),
	})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid policy index")
		return
	}
	policy, ok := s.catalog.Get(idx)
	if !ok {
		respondError(w, http.StatusNotFound, "policy not found")
		return
	}
	respondJSON(w, http.StatusOK, policy)
}

// handleViewPolicy records a view event for the policy detail page.
func (s *Server) handleViewPolicy(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid policy index")
		return
	}
	policy, ok := s.catalog.Get(idx)
	if !ok {
		respondError(w, http.StatusNotFound, "policy not found")
		return
	}

	var g geoParams
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeJSON(w, r, &g) {
			return
		}
	}
	_ = s.recorder.Record(r.Context(), analytics.Event{
		Kind:      analytics.KindView,
		Policy:    policy.Title,
		UF:        g.UF,
		Municipio: g.Municipio,
		Gender:    g.Gender,
	})
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

type matchRequest struct {
	Profile       map[string]any `json:"profile"`
	UF            string         `json:"uf,omitempty"`
	Municipio     string         `json:"municipio,omitempty"`
	Gender        string         `json:"gender,omitempty"`
	DesiredPolicy string         `json:"desired_policy,omitempty"`
	OwnerID       int64          `json:"owner_id,omitempty"`
	ProfileID     int64          `json:"profile_id,omitempty"`
}

type matchEntry struct {
	Policy  catalog.Policy `json:"policy"`
	Met     []string       `json:"met"`
	Missing []string       `json:"missing,omitempty"`
}

type matchResponse struct {
	Eligible []matchEntry `json:"eligible"`
	Nearly   []matchEntry `json:"nearly"`
}

// handleMatch runs the eligibility engine over the whole catalogue. Analytics
// writes are best-effort; a failed event store never blocks the response.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Profile == nil {
		respondError(w, http.StatusBadRequest, "profile is required")
		return
	}

	eligible, nearly := s.rules.Classify(s.catalog.AccessTexts(), rules.Profile(req.Profile))

	resp := matchResponse{
		Eligible: s.entries(eligible),
		Nearly:   s.entries(nearly),
	}

	ctx := r.Context()

	// One matches event per computation, aggregating the nearly rows' labels.
	// Fully eligible policies contribute only their own eligible event.
	var met, missing []string
	for _, e := range resp.Nearly {
		met = append(met, e.Met...)
		missing = append(missing, e.Missing...)
	}
	_ = s.recorder.Record(ctx, analytics.Event{
		Kind:      analytics.KindMatches,
		UF:        req.UF,
		Municipio: req.Municipio,
		Gender:    req.Gender,
		Met:       met,
		Missing:   missing,
		Extras: map[string]any{
			"eligible_cnt": len(resp.Eligible),
			"nearly_cnt":   len(resp.Nearly),
		},
	})
	for _, e := range resp.Eligible {
		_ = s.recorder.Record(ctx, analytics.Event{
			Kind:      analytics.KindEligible,
			Policy:    e.Policy.Title,
			UF:        req.UF,
			Municipio: req.Municipio,
			Gender:    req.Gender,
		})
	}

	if req.OwnerID != 0 && s.accounts != nil {
		s.saveHistory(r, req, resp)
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleMatchPolicy evaluates the profile against one policy's requirement
// text, for the detail page. No analytics write; the detail view is already
// captured by the view event.
func (s *Server) handleMatchPolicy(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid policy index")
		return
	}
	policy, ok := s.catalog.Get(idx)
	if !ok {
		respondError(w, http.StatusNotFound, "policy not found")
		return
	}

	var req matchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Profile == nil {
		respondError(w, http.StatusBadRequest, "profile is required")
		return
	}

	met, missing := s.rules.Match(policy.Access, rules.Profile(req.Profile))
	respondJSON(w, http.StatusOK, matchEntry{Policy: policy, Met: met, Missing: missing})
}

func (s *Server) entries(matches []rules.PolicyMatch) []matchEntry {
	out := make([]matchEntry, 0, len(matches))
	for _, m := range matches {
		policy, ok := s.catalog.Get(m.Index)
		if !ok {
			continue
		}
		out = append(out, matchEntry{Policy: policy, Met: m.Met, Missing: m.Missing})
	}
	return out
}

// saveHistory stores the outcome in the account's eligibility history,
// best-effort like the analytics writes.
func (s *Server) saveHistory(r *http.Request, req matchRequest, resp matchResponse) {
	result := account.EligibilityResult{
		OwnerID:       req.OwnerID,
		ProfileID:     req.ProfileID,
		DesiredPolicy: req.DesiredPolicy,
	}
	for _, e := range resp.Eligible {
		result.Matched = append(result.Matched, account.PolicyResult{
			Policy: e.Policy.Title, Met: e.Met,
		})
	}
	for _, e := range resp.Nearly {
		result.Gaps = append(result.Gaps, account.PolicyResult{
			Policy: e.Policy.Title, Met: e.Met, Missing: e.Missing,
		})
	}
	if _, err := s.accounts.SaveEligibility(r.Context(), result); err != nil {
		s.log.Warn("eligibility history dropped",
			zap.Int64("owner_id", req.OwnerID),
			zap.Error(err),
		)
	}
}

// handleObservatory runs one rollup over the filtered event log and joins the
// heat source to coordinates.
func (s *Server) handleObservatory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metric, ok := analytics.ParseMetric(q.Get("metric"))
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown metric")
		return
	}

	filter := analytics.Filter{
		UF:        q.Get("uf"),
		Municipio: q.Get("municipio"),
		Gender:    q.Get("gender"),
	}
	var err error
	if filter.Since, err = parseTime(q.Get("since")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}
	if filter.Until, err = parseTime(q.Get("until")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid until timestamp")
		return
	}

	events, err := s.events.Query(r.Context(), filter)
	if err != nil {
		s.log.Error("observatory query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "event query failed")
		return
	}

	topN := s.topN
	if n, convErr := strconv.Atoi(q.Get("top_n")); convErr == nil {
		topN = n
	}
	result := analytics.Aggregate(events, metric, topN, filter.GeoFiltered())

	mapAvailable := false
	if s.resolver != nil && len(result.Heat) > 0 {
		joined, err := s.resolver.Resolve(result.Heat)
		switch {
		case eris.Is(err, geo.ErrNoCoordinates):
			result.Heat = nil
		case err != nil:
			s.log.Error("heat join failed", zap.Error(err))
			result.Heat = nil
		default:
			result.Heat = joined
			mapAvailable = len(joined) > 0
		}
	} else {
		result.Heat = nil
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"result":        result,
		"map_available": mapAvailable,
	})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.schema)
}
