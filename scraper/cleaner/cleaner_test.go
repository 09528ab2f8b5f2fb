package cleaner

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_Empty(t *testing.T) {
	assert.Equal(t, "", Clean(""))
	assert.Equal(t, "", Clean("  \n\t \r\n"))
}

func TestClean_RemovesTrailingExcludedSection(t *testing.T) {
	got := Clean("== Voir aussi ==\nLien\n\nParagraphe un. Paragraphe deux.")
	assert.Equal(t, "Paragraphe un. Paragraphe deux.", got)
}

func TestClean_RemovesSectionUntilNextHeading(t *testing.T) {
	raw := "Intro du cours.\n\n== Références ==\nRef 1\n\nRef 2\n\n=== Sous-partie ===\nEncore ref\n\n== Exemples ==\nUn exemple."
	got := Clean(raw)

	assert.Equal(t, "Intro du cours.\n\nExemples\n\nUn exemple.", got)
	assert.NotContains(t, got, "Ref")
	assert.NotContains(t, got, "Sous-partie")
}

func TestClean_SectionNamesAreCaseInsensitive(t *testing.T) {
	for _, name := range []string{"liens externes", "LIENS EXTERNES", "Notes et Références", "bibliographie"} {
		t.Run(name, func(t *testing.T) {
			got := Clean("Texte.\n\n== " + name + " ==\nhttp://exemple.fr\n\n== Suite ==\nFin.")
			assert.Equal(t, "Texte.\n\nSuite\n\nFin.", got)
		})
	}
}

func TestClean_KeepsOtherSections(t *testing.T) {
	got := Clean("== Définition ==\nUn triangle a trois côtés.")
	assert.Equal(t, "Définition\n\nUn triangle a trois côtés.", got)
}

func TestClean_Latex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"displaystyle block", "L'aire vaut {\\displaystyle a^2} unités.", "L'aire vaut unités."},
		{"fraction", "On a \\frac{1}{2} de la tarte.", "On a de la tarte."},
		{"greek letter", "Le nombre \\pi vaut environ 3,14.", "Le nombre vaut environ 3,14."},
		{"operator", "3 \\times 4 = 12", "3 4 = 12"},
		{"text command", "x \\text{cm} de long", "x de long"},
		{"catch-all", "la fonction \\infty tend", "la fonction tend"},
		{"empty braces left behind", "valeur { , } finale", "valeur finale"},
		{"left right", "\\left( x \\right) = 2", "x = 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_WikiMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"html tags", "Un <b>mot</b> en <span class=\"x\">gras</span>.", "Un mot en gras."},
		{"template", "Avant {{Palette|Géométrie}} après.", "Avant après."},
		{"nested template", "A {{Infobox {{lien|x}} fin}} B", "A B"},
		{"internal link with label", "Voir [[Triangle rectangle|le triangle]] ici.", "Voir le triangle ici."},
		{"internal link", "Le [[Théorème de Pythagore]] est connu.", "Le Théorème de Pythagore est connu."},
		{"external link with label", "Site [https://vikidia.org Vikidia] utile.", "Site Vikidia utile."},
		{"bare external link", "Lien [https://vikidia.org] ici.", "Lien ici."},
		{"bullets", "* un\n** deux\n  * trois", "- un\n- deux\n- trois"},
		{"heading delimiters", "=== Propriétés ===\nTexte.", "Propriétés\n\nTexte."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_Whitespace(t *testing.T) {
	got := Clean("  Ligne   un \t avec\tespaces  \r\n\r\n\r\n\r\n  Ligne deux  \n \n \n \nLigne trois")
	assert.Equal(t, "Ligne un avec espaces\n\nLigne deux\n\nLigne trois", got)
}

var (
	headingPattern = regexp.MustCompile(`={2,}.+?={2,}`)
	htmlPattern    = regexp.MustCompile(`<[^>]+>`)
	latexPattern   = regexp.MustCompile(`\\[a-zA-Z]+`)
)

func TestClean_OutputInvariants(t *testing.T) {
	inputs := []string{
		"== Histoire ==\nLe <i>Moyen Âge</i> {{date|476}} commence.\n\n== Notes ==\n* note\n",
		"{\\displaystyle \\sum _{i=1}^{n}i} = \\frac{n(n+1)}{2}",
		"=== a ===== b ==\n<<br>>\n\\\\alpha\\beta",
		"[[a|[[b]]]] [http://x y] {{ {{ }} }} \\mathbb{R}",
		"\r\n== Voir aussi ==\r\n",
		strings.Repeat("=", 7) + " titre " + strings.Repeat("=", 3),
	}
	for _, in := range inputs {
		got := Clean(in)
		assert.False(t, headingPattern.MatchString(got), "heading in %q", got)
		assert.False(t, htmlPattern.MatchString(got), "html in %q", got)
		assert.False(t, latexPattern.MatchString(got), "latex in %q", got)
		assert.NotContains(t, got, "\n\n\n")
		for _, line := range strings.Split(got, "\n") {
			assert.Equal(t, strings.TrimSpace(line), line)
		}
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"== Voir aussi ==\nLien\n\nParagraphe un. Paragraphe deux.",
		"Intro.\n\n== Cours ==\n* point {{x}} [[a|b]]\n\n\n\nFin \\alpha.",
		"Déjà propre.\n\n- puce\n- autre puce",
		"{\\displaystyle x^2}\n\n<ref>source</ref> texte",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once))
	}
}

func TestClean_InvalidUTF8(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, "abc", Clean("a\xffbc"))
	})
}
