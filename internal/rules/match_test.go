package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMap(t *testing.T) *Map {
	t.Helper()
	path := writeTempJSON(t, `{
		"renda baixa":  {"field": "renda", "type": "number", "op": "<=", "value": 1000, "label": "Renda até 1000"},
		"regiao norte": {"field": "estado", "type": "select_in", "value": ["AM", "PA", "AC"], "label": "Residente na região Norte"}
	}`)
	m, err := LoadKeywordMap(path)
	require.NoError(t, err)
	return m
}

func TestMatch_Classification(t *testing.T) {
	m := testMap(t)
	text := "Renda baixa comprovada"

	met, missing := m.Match(text, Profile{"renda": 800})
	assert.Equal(t, []string{"Renda até 1000"}, met)
	assert.Empty(t, missing)

	met, missing = m.Match(text, Profile{"renda": 1500})
	assert.Empty(t, met)
	assert.Equal(t, []string{"Renda até 1000"}, missing)

	// Absent field fails the number parse and lands in missing.
	met, missing = m.Match(text, Profile{})
	assert.Empty(t, met)
	assert.Equal(t, []string{"Renda até 1000"}, missing)
}

func TestMatch_IrrelevantTextFiresNothing(t *testing.T) {
	m := testMap(t)
	met, missing := m.Match("Inscrição no CadÚnico", Profile{"renda": 100})
	assert.Empty(t, met)
	assert.Empty(t, missing)
}

func TestMatch_AccentAndCaseInsensitiveKeyword(t *testing.T) {
	m := testMap(t)
	met, missing := m.Match("Morar na REGIÃO NORTE do país", Profile{"estado": "PA"})
	assert.Equal(t, []string{"Residente na região Norte"}, met)
	assert.Empty(t, missing)
}

func TestMatch_MultipleRulesKeepFileOrder(t *testing.T) {
	m := testMap(t)
	text := "renda baixa e residência na região norte"
	met, missing := m.Match(text, Profile{"renda": 500, "estado": "SP"})
	assert.Equal(t, []string{"Renda até 1000"}, met)
	assert.Equal(t, []string{"Residente na região Norte"}, missing)
}

func TestMatch_DuplicateLabelsNotDeduped(t *testing.T) {
	path := writeTempJSON(t, `{
		"idade minima":   {"field": "idade", "type": "number", "op": ">=", "value": 18, "label": "Idade mínima"},
		"maior de idade": {"field": "idade", "type": "number", "op": ">=", "value": 18, "label": "Idade mínima"}
	}`)
	m, err := LoadKeywordMap(path)
	require.NoError(t, err)

	met, _ := m.Match("idade mínima: ser maior de idade", Profile{"idade": 30})
	assert.Equal(t, []string{"Idade mínima", "Idade mínima"}, met)
}

func TestClassify(t *testing.T) {
	m := testMap(t)
	access := []string{
		"Renda baixa comprovada",                      // eligible for renda<=1000
		"Renda baixa e morar na região norte",         // nearly: region fails
		"Apresentar documento de identidade",          // no rule fires
		"",                                            // empty access text skipped
	}
	profile := Profile{"renda": 700, "estado": "SP"}

	eligible, nearly := m.Classify(access, profile)

	require.Len(t, eligible, 1)
	assert.Equal(t, 0, eligible[0].Index)

	require.Len(t, nearly, 1)
	assert.Equal(t, 1, nearly[0].Index)
	assert.Equal(t, []string{"Renda até 1000"}, nearly[0].Met)
	assert.Equal(t, []string{"Residente na região Norte"}, nearly[0].Missing)
}

// Eligible and nearly sets are disjoint and cover exactly the policies with
// at least one fired rule.
func TestClassify_SetsPartitionFiredPolicies(t *testing.T) {
	m := testMap(t)
	access := []string{
		"renda baixa", "região norte", "renda baixa e região norte", "nada relevante",
	}
	for _, profile := range []Profile{
		{"renda": 100, "estado": "PA"},
		{"renda": 9999, "estado": "XX"},
		{},
	} {
		eligible, nearly := m.Classify(access, profile)
		seen := make(map[int]bool)
		for _, pm := range eligible {
			assert.False(t, seen[pm.Index])
			seen[pm.Index] = true
			assert.Empty(t, pm.Missing)
			assert.NotEmpty(t, pm.Met)
		}
		for _, pm := range nearly {
			assert.False(t, seen[pm.Index])
			seen[pm.Index] = true
			assert.NotEmpty(t, pm.Missing)
		}
		// Policy 3 fires no rule for any profile.
		assert.False(t, seen[3])
		assert.Len(t, seen, 3)
	}
}
