package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercases", "RENDA BAIXA", "renda baixa"},
		{"strips accents", "São Paulo", "sao paulo"},
		{"cedilla", "Operacionalização", "operacionalizacao"},
		{"punctuation to space", "renda, baixa; comprovada.", "renda baixa comprovada"},
		{"keeps dash underscore slash", "bolsa-familia agro_2 a/b", "bolsa-familia agro_2 a/b"},
		{"collapses whitespace", "  renda   baixa \t\n comprovada ", "renda baixa comprovada"},
		{"digits kept", "Idade 18 anos", "idade 18 anos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"São Paulo", "Renda até R$ 1.000,00!", "  ÁGUA-doce/12_x  ", "",
		"pescador(a) artesanal — colônia Z-16",
	}
	for _, s := range inputs {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}
}

func TestNormalize_AccentInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("sao paulo"), Normalize("São Paulo"))
	assert.Equal(t, Normalize("para"), Normalize("Pará"))
}
