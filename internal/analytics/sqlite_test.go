package analytics

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "analytics.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_AppendQuery_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	in := Event{
		TS:        time.Date(2026, 5, 10, 12, 30, 0, 123456789, time.UTC),
		Kind:      KindMatches,
		Policy:    "Bolsa Verde",
		UF:        "PA",
		Municipio: "Belém",
		Query:     "pesca artesanal",
		Gender:    "feminino",
		Met:       []string{"Renda até 1 salário mínimo"},
		Missing:   []string{"CadÚnico", "Carteira de pescador"},
		Extras:    map[string]any{"eligible_cnt": float64(1), "nearly_cnt": float64(2)},
	}
	require.NoError(t, st.Append(ctx, in))

	events, err := st.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.NotZero(t, got.ID)
	assert.True(t, got.TS.Equal(in.TS))
	assert.Equal(t, in.Kind, got.Kind)
	assert.Equal(t, in.Policy, got.Policy)
	assert.Equal(t, in.UF, got.UF)
	assert.Equal(t, in.Municipio, got.Municipio)
	assert.Equal(t, in.Query, got.Query)
	assert.Equal(t, in.Gender, got.Gender)
	assert.Equal(t, in.Met, got.Met)
	assert.Equal(t, in.Missing, got.Missing)
	assert.Equal(t, in.Extras, got.Extras)
}

func TestSQLite_Append_StampsZeroTimestamp(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	before := time.Now().UTC()
	require.NoError(t, st.Append(ctx, Event{Kind: KindSearch, Query: "bolsa"}))

	events, err := st.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].TS.IsZero())
	assert.False(t, events[0].TS.Before(before))
}

func TestSQLite_Query_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.Append(ctx, Event{
			TS:     base.Add(time.Duration(i) * time.Hour),
			Kind:   KindView,
			Policy: []string{"A", "B", "C"}[i],
		}))
	}

	events, err := st.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "C", events[0].Policy)
	assert.Equal(t, "B", events[1].Policy)
	assert.Equal(t, "A", events[2].Policy)
}

func TestSQLite_Query_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seed := []Event{
		{TS: base, Kind: KindView, Policy: "A", UF: "PA", Municipio: "Belém", Gender: "feminino"},
		{TS: base.Add(time.Hour), Kind: KindView, Policy: "B", UF: "BA", Municipio: "Salvador", Gender: "masculino"},
		{TS: base.Add(2 * time.Hour), Kind: KindView, Policy: "C", UF: "PA", Municipio: "Santarém", Gender: "feminino"},
	}
	for _, e := range seed {
		require.NoError(t, st.Append(ctx, e))
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"by uf", Filter{UF: "PA"}, []string{"C", "A"}},
		{"by municipio", Filter{Municipio: "Salvador"}, []string{"B"}},
		{"by gender", Filter{Gender: "feminino"}, []string{"C", "A"}},
		{"since", Filter{Since: base.Add(time.Hour)}, []string{"C", "B"}},
		{"until", Filter{Until: base.Add(time.Hour)}, []string{"B", "A"}},
		{"combined", Filter{UF: "PA", Since: base.Add(time.Hour)}, []string{"C"}},
		{"no match", Filter{UF: "RJ"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := st.Query(ctx, tt.filter)
			require.NoError(t, err)
			var got []string
			for _, e := range events {
				got = append(got, e.Policy)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLite_Query_SinceBoundarySecond(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Sub-second and whole-second events inside the boundary second must both
	// survive a second-precision Since filter, and the sub-second one sorts
	// newer.
	boundary := time.Date(2026, 5, 10, 0, 49, 27, 0, time.UTC)
	require.NoError(t, st.Append(ctx, Event{TS: boundary.Add(500 * time.Millisecond), Kind: KindView, Policy: "Sub"}))
	require.NoError(t, st.Append(ctx, Event{TS: boundary, Kind: KindView, Policy: "Whole"}))
	require.NoError(t, st.Append(ctx, Event{TS: boundary.Add(-time.Second), Kind: KindView, Policy: "Before"}))

	events, err := st.Query(ctx, Filter{Since: boundary})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Sub", events[0].Policy)
	assert.Equal(t, "Whole", events[1].Policy)
}

func TestSQLite_Append_Concurrent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.Append(ctx, Event{Kind: KindSearch, Query: "q"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	events, err := st.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, events, n)
}

func TestRecorder_NilStoreIsNoop(t *testing.T) {
	var r *Recorder
	assert.NoError(t, r.Record(context.Background(), Event{Kind: KindView}))
}
