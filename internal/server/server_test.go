package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redecaete/matupiri/internal/account"
	"github.com/redecaete/matupiri/internal/analytics"
	"github.com/redecaete/matupiri/internal/catalog"
	"github.com/redecaete/matupiri/internal/geo"
	"github.com/redecaete/matupiri/internal/rules"
)

const testKeywordMap = `{
	"renda": {"field": "renda", "type": "number", "op": "<=", "value": 1000, "label": "Renda até 1 salário mínimo"},
	"cadunico": {"field": "cadunico", "type": "bool", "label": "Inscrição no CadÚnico"}
}`

func testCatalogRows() [][]string {
	return [][]string{
		{"Politicas publicas", "nivel", "Acesso"},
		{"Bolsa Verde", "federal", "Renda familiar e inscrição no CadÚnico"},
		{"PAA", "federal", "Renda comprovada"},
		{"Sem Requisitos", "estadual", ""},
	}
}

type testEnv struct {
	server   *Server
	events   analytics.Store
	accounts *account.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	kmPath := filepath.Join(dir, "keyword_map.json")
	require.NoError(t, os.WriteFile(kmPath, []byte(testKeywordMap), 0o644))
	ruleMap, err := rules.LoadKeywordMap(kmPath)
	require.NoError(t, err)

	cat, err := catalog.LoadRows(testCatalogRows())
	require.NoError(t, err)

	events, err := analytics.NewSQLite(filepath.Join(dir, "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() }) //nolint:errcheck
	require.NoError(t, events.Migrate(context.Background()))

	accounts, err := account.NewStore(filepath.Join(dir, "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { accounts.Close() }) //nolint:errcheck
	require.NoError(t, accounts.Migrate(context.Background()))

	lat, lon := -1.45, -48.48
	resolver := geo.NewResolver(&geo.Reference{
		Municipalities: []geo.Municipality{
			{IBGECode: 1501402, Name: "Belém", UF: "PA", Lat: &lat, Lon: &lon},
		},
	})

	srv := New(Options{
		Catalog:        cat,
		Rules:          ruleMap,
		Schema:         map[string]rules.FieldSpec{"renda": {Label: "Renda mensal", Type: "number"}},
		Events:         events,
		Accounts:       accounts,
		Resolver:       resolver,
		TopN:           10,
		AllowedOrigins: []string{"*"},
	})
	return &testEnv{server: srv, events: events, accounts: accounts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ListPolicies_RecordsSearch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/policies?q=bolsa&uf=PA&municipio=Bel%C3%A9m", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Policies []catalog.Policy `json:"policies"`
		Levels   []string         `json:"levels"`
		Total    int              `json:"total"`
	}](t, rec)
	require.Len(t, body.Policies, 1)
	assert.Equal(t, "Bolsa Verde", body.Policies[0].Title)
	assert.Equal(t, []string{"estadual", "federal"}, body.Levels)
	assert.Equal(t, 3, body.Total)

	events, err := env.events.Query(context.Background(), analytics.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, analytics.KindSearch, events[0].Kind)
	assert.Equal(t, "bolsa", events[0].Query)
	assert.Equal(t, "PA", events[0].UF)
}

func TestServer_ListPolicies_EmptyQueryNotRecorded(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := env.events.Query(context.Background(), analytics.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestServer_GetPolicy(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/policies/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	policy := decodeBody[catalog.Policy](t, rec)
	assert.Equal(t, "Bolsa Verde", policy.Title)

	rec = env.do(t, http.MethodGet, "/api/policies/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/policies/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ViewPolicy_RecordsEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/policies/0/view",
		map[string]string{"uf": "PA", "municipio": "Belém", "gender": "feminino"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	events, err := env.events.Query(context.Background(), analytics.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, analytics.KindView, events[0].Kind)
	assert.Equal(t, "Bolsa Verde", events[0].Policy)
	assert.Equal(t, "feminino", events[0].Gender)
}

func TestServer_Match_ClassifiesAndRecords(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/match", map[string]any{
		"profile":   map[string]any{"renda": 800, "cadunico": true},
		"uf":        "PA",
		"municipio": "Belém",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[matchResponse](t, rec)
	// Bolsa Verde fires both rules and both pass; PAA fires only renda.
	require.Len(t, body.Eligible, 2)
	assert.Equal(t, "Bolsa Verde", body.Eligible[0].Policy.Title)
	assert.ElementsMatch(t, []string{"Renda até 1 salário mínimo", "Inscrição no CadÚnico"}, body.Eligible[0].Met)
	assert.Equal(t, "PAA", body.Eligible[1].Policy.Title)
	assert.Empty(t, body.Nearly)

	events, err := env.events.Query(context.Background(), analytics.Filter{})
	require.NoError(t, err)
	// one matches event for the computation + one eligible event per fully
	// eligible policy
	var matches, eligible int
	for _, e := range events {
		switch e.Kind {
		case analytics.KindMatches:
			matches++
		case analytics.KindEligible:
			eligible++
		}
	}
	assert.Equal(t, 1, matches)
	assert.Equal(t, 2, eligible)
}

func TestServer_Match_SingleMatchesEventAggregatesNearly(t *testing.T) {
	env := newTestEnv(t)

	// PAA fully eligible, Bolsa Verde nearly: the matches event carries only
	// the nearly row's labels plus the counts; eligible events carry nothing.
	rec := env.do(t, http.MethodPost, "/api/match", map[string]any{
		"profile": map[string]any{"renda": 800, "cadunico": false},
		"uf":      "PA",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := env.events.Query(context.Background(), analytics.Filter{})
	require.NoError(t, err)

	var matches, eligible []analytics.Event
	for _, e := range events {
		switch e.Kind {
		case analytics.KindMatches:
			matches = append(matches, e)
		case analytics.KindEligible:
			eligible = append(eligible, e)
		}
	}

	require.Len(t, matches, 1)
	assert.Equal(t, []string{"Renda até 1 salário mínimo"}, matches[0].Met)
	assert.Equal(t, []string{"Inscrição no CadÚnico"}, matches[0].Missing)
	assert.Equal(t, map[string]any{"eligible_cnt": 1.0, "nearly_cnt": 1.0}, matches[0].Extras)

	require.Len(t, eligible, 1)
	assert.Equal(t, "PAA", eligible[0].Policy)
	assert.Nil(t, eligible[0].Extras)
}

func TestServer_Match_NearlyEligible(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/match", map[string]any{
		"profile": map[string]any{"renda": 800, "cadunico": false},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[matchResponse](t, rec)
	// PAA is still fully eligible; Bolsa Verde misses the CadÚnico rule.
	require.Len(t, body.Eligible, 1)
	assert.Equal(t, "PAA", body.Eligible[0].Policy.Title)
	require.Len(t, body.Nearly, 1)
	assert.Equal(t, "Bolsa Verde", body.Nearly[0].Policy.Title)
	assert.Equal(t, []string{"Inscrição no CadÚnico"}, body.Nearly[0].Missing)
}

func TestServer_MatchPolicy_SinglePolicy(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/policies/0/match", map[string]any{
		"profile": map[string]any{"renda": 800, "cadunico": false},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[matchEntry](t, rec)
	assert.Equal(t, "Bolsa Verde", body.Policy.Title)
	assert.Equal(t, []string{"Renda até 1 salário mínimo"}, body.Met)
	assert.Equal(t, []string{"Inscrição no CadÚnico"}, body.Missing)

	// Detail-page evaluation is not an analytics signal.
	events, err := env.events.Query(context.Background(), analytics.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestServer_Match_MissingProfile(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/match", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Observatory_RankingAndHeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, env.events.Append(ctx, analytics.Event{
			Kind: analytics.KindView, Policy: "Bolsa Verde", UF: "PA", Municipio: "Belém",
		}))
	}
	require.NoError(t, env.events.Append(ctx, analytics.Event{
		Kind: analytics.KindView, Policy: "PAA", UF: "PA", Municipio: "Belém",
	}))

	rec := env.do(t, http.MethodGet, "/api/observatory?metric=views", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Result       analytics.Result `json:"result"`
		MapAvailable bool             `json:"map_available"`
	}](t, rec)
	require.Len(t, body.Result.Ranking, 2)
	assert.Equal(t, "Bolsa Verde", body.Result.Ranking[0].Policy)
	assert.Equal(t, 3, body.Result.Ranking[0].Count)
	assert.True(t, body.MapAvailable)
	require.Len(t, body.Result.Heat, 1)
	assert.NotNil(t, body.Result.Heat[0].Lat)
}

func TestServer_Observatory_UnknownMetric(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/observatory?metric=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Observatory_TimeFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.events.Append(ctx, analytics.Event{
		TS: old, Kind: analytics.KindView, Policy: "Antiga", UF: "PA", Municipio: "Belém",
	}))
	require.NoError(t, env.events.Append(ctx, analytics.Event{
		Kind: analytics.KindView, Policy: "Nova", UF: "PA", Municipio: "Belém",
	}))

	rec := env.do(t, http.MethodGet, "/api/observatory?metric=views&since=2026-01-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Result analytics.Result `json:"result"`
	}](t, rec)
	require.Len(t, body.Result.Ranking, 1)
	assert.Equal(t, "Nova", body.Result.Ranking[0].Policy)
}

func TestServer_Accounts_RegisterLoginProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/accounts/person",
		map[string]string{"name": "Maria", "username": "maria", "password": "segredo"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[map[string]int64](t, rec)
	ownerID := created["id"]
	require.Positive(t, ownerID)

	rec = env.do(t, http.MethodPost, "/api/login/person",
		map[string]string{"username": "maria", "password": "segredo"})
	require.Equal(t, http.StatusOK, rec.Code)
	acct := decodeBody[account.Account](t, rec)
	assert.Equal(t, ownerID, acct.ID)

	rec = env.do(t, http.MethodPost, "/api/login/person",
		map[string]string{"username": "maria", "password": "errada"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/profiles", map[string]any{
		"owner_id": ownerID,
		"data":     map[string]any{"renda": 800},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	profile := decodeBody[map[string]int64](t, rec)

	rec = env.do(t, http.MethodGet, "/api/profiles/"+itoa(profile["id"]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loaded := decodeBody[struct {
		Data map[string]any `json:"data"`
	}](t, rec)
	assert.Equal(t, 800.0, loaded.Data["renda"])
}

func TestServer_UpdateProfile_ForbiddenForNonOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner, err := env.accounts.CreatePerson(ctx, "Maria", "maria", "a")
	require.NoError(t, err)
	other, err := env.accounts.CreatePerson(ctx, "João", "joao", "b")
	require.NoError(t, err)
	pid, err := env.accounts.SaveProfile(ctx, owner, map[string]any{"renda": 800.0})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPut, "/api/profiles/"+itoa(pid), map[string]any{
		"owner_id": other,
		"data":     map[string]any{"renda": 0},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/profiles/"+itoa(pid), map[string]any{
		"owner_id": owner,
		"data":     map[string]any{"renda": 950},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Schema(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	schema := decodeBody[map[string]rules.FieldSpec](t, rec)
	assert.Equal(t, "number", schema["renda"].Type)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
