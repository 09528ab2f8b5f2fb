package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := map[string]string{
		"Théorème de Pythagore": "theoreme de pythagore",
		"ÉLÈVE de 6ème":         "eleve de 6eme",
		"Français":              "francais",
		"déjà":                  "deja",
		"":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Fold(in), in)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"cours.pdf":              "cours.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\eleve\a b.pdf`: "a b.pdf",
		"fiche:maths?.pdf":       "fiche-maths.pdf",
		"  ":                     "",
		"..":                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFileName(in), in)
	}
}
