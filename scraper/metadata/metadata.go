// Package metadata maps source categories to subjects and builds chunk metadata.
package metadata

import (
	"slices"
	"strings"

	"scolaire/textutil"
	"scolaire/types"
)

var categorySubjects = map[string]types.Subject{
	"Catégorie:Mathématiques":   types.Mathematiques,
	"Catégorie:Algèbre":         types.Mathematiques,
	"Catégorie:Arithmétique":    types.Mathematiques,
	"Catégorie:Calcul":          types.Mathematiques,
	"Catégorie:Géométrie":       types.Mathematiques,
	"Catégorie:Nombre":          types.Mathematiques,
	"Catégorie:Numération":      types.Mathematiques,
	"Catégorie:Statistiques":    types.Mathematiques,
	"Catégorie:Fonction":        types.Mathematiques,
	"Catégorie:Analyse":         types.Mathematiques,
	"Catégorie:Unité de mesure": types.Mathematiques,

	"Catégorie:Français":                  types.Francais,
	"Catégorie:Grammaire":                 types.Francais,
	"Catégorie:Littérature":               types.Francais,
	"Catégorie:Conjugaison":               types.Francais,
	"Catégorie:Classe grammaticale":       types.Francais,
	"Catégorie:Nature d'un mot":           types.Francais,
	"Catégorie:Ponctuation":               types.Francais,
	"Catégorie:Littérature française":     types.Francais,
	"Catégorie:Genre ou forme littéraire": types.Francais,
	"Catégorie:Écrivain":                  types.Francais,
	"Catégorie:Écrivaine":                 types.Francais,
	"Catégorie:Livre":                     types.Francais,
	"Catégorie:Récit":                     types.Francais,

	"Catégorie:Histoire":                 types.HistoireGeo,
	"Catégorie:Histoire par continent":   types.HistoireGeo,
	"Catégorie:Histoire par pays":        types.HistoireGeo,
	"Catégorie:Histoire par thème":       types.HistoireGeo,
	"Catégorie:Histoire par siècle":      types.HistoireGeo,
	"Catégorie:Période historique":       types.HistoireGeo,
	"Catégorie:Personnalité historique":  types.HistoireGeo,
	"Catégorie:Civilisation":             types.HistoireGeo,
	"Catégorie:Guerre":                   types.HistoireGeo,
	"Catégorie:Chronologie":              types.HistoireGeo,
	"Catégorie:Archéologie":              types.HistoireGeo,
	"Catégorie:Colonisation":             types.HistoireGeo,
	"Catégorie:Peuple":                   types.HistoireGeo,
	"Catégorie:Géographie":               types.HistoireGeo,
	"Catégorie:Géographie par continent": types.HistoireGeo,
	"Catégorie:Géographie par pays":      types.HistoireGeo,
	"Catégorie:Continent":                types.HistoireGeo,
	"Catégorie:Pays":                     types.HistoireGeo,
	"Catégorie:Capitale":                 types.HistoireGeo,
	"Catégorie:Climat":                   types.HistoireGeo,
	"Catégorie:Relief":                   types.HistoireGeo,
	"Catégorie:Cours d'eau":              types.HistoireGeo,
	"Catégorie:Cartographie":             types.HistoireGeo,
	"Catégorie:Ville":                    types.HistoireGeo,
	"Catégorie:Île":                      types.HistoireGeo,
	"Catégorie:Lac":                      types.HistoireGeo,
	"Catégorie:Terre":                    types.HistoireGeo,
	"Catégorie:Démographie":              types.HistoireGeo,

	"Catégorie:Biologie":            types.SVT,
	"Catégorie:Anatomie":            types.SVT,
	"Catégorie:Botanique":           types.SVT,
	"Catégorie:Cellule":             types.SVT,
	"Catégorie:Évolution":           types.SVT,
	"Catégorie:Génétique":           types.SVT,
	"Catégorie:Microbiologie":       types.SVT,
	"Catégorie:Zoologie":            types.SVT,
	"Catégorie:Écologie":            types.SVT,
	"Catégorie:Géologie":            types.SVT,
	"Catégorie:Fossile":             types.SVT,
	"Catégorie:Minéral":             types.SVT,
	"Catégorie:Roche":               types.SVT,
	"Catégorie:Érosion":             types.SVT,
	"Catégorie:Ressource naturelle": types.SVT,

	"Catégorie:Physique":                types.PhysiqueChimie,
	"Catégorie:Chimie":                  types.PhysiqueChimie,
	"Catégorie:Électromagnétisme":       types.PhysiqueChimie,
	"Catégorie:Gaz":                     types.PhysiqueChimie,
	"Catégorie:Grandeur physique":       types.PhysiqueChimie,
	"Catégorie:Loi de la physique":      types.PhysiqueChimie,
	"Catégorie:Mécanique":               types.PhysiqueChimie,
	"Catégorie:Optique":                 types.PhysiqueChimie,
	"Catégorie:Thermodynamique":         types.PhysiqueChimie,
	"Catégorie:Atome":                   types.PhysiqueChimie,
	"Catégorie:Classification chimique": types.PhysiqueChimie,
	"Catégorie:Acide":                   types.PhysiqueChimie,
	"Catégorie:Air":                     types.PhysiqueChimie,

	"Catégorie:Technologie":          types.Technologie,
	"Catégorie:Aéronautique":         types.Technologie,
	"Catégorie:Astronautique":        types.Technologie,
	"Catégorie:Instrument de mesure": types.Technologie,
	"Catégorie:Outil":                types.Technologie,
	"Catégorie:Robot":                types.Technologie,

	"Catégorie:Anglais":  types.Anglais,
	"Catégorie:Espagnol": types.Espagnol,
}

type subjectRoots struct {
	subject types.Subject
	roots   []string
}

// Crawl order of the subjects.
var rootCategories = []subjectRoots{
	{types.Mathematiques, []string{"Catégorie:Mathématiques"}},
	{types.Francais, []string{"Catégorie:Français", "Catégorie:Grammaire", "Catégorie:Littérature"}},
	{types.HistoireGeo, []string{"Catégorie:Histoire", "Catégorie:Géographie"}},
	{types.SVT, []string{"Catégorie:Biologie", "Catégorie:Géologie"}},
	{types.PhysiqueChimie, []string{"Catégorie:Physique", "Catégorie:Chimie"}},
	{types.Technologie, []string{"Catégorie:Technologie"}},
	{types.Anglais, []string{"Catégorie:Anglais"}},
	{types.Espagnol, []string{"Catégorie:Espagnol"}},
}

var ignoredCategories = map[string]struct{}{
	"Catégorie:Ébauche mathématiques":                          {},
	"Catégorie:Image mathématiques":                            {},
	"Catégorie:Quiz mathématiques":                             {},
	"Catégorie:Livre de mathématiques":                         {},
	"Catégorie:Instrument de mathématiques":                    {},
	"Catégorie:Mathématicien":                                  {},
	"Catégorie:Historien":                                      {},
	"Catégorie:Généalogie":                                     {},
	"Catégorie:Géographe":                                      {},
	"Catégorie:Faune":                                          {},
	"Catégorie:Forme de végétation":                            {},
	"Catégorie:Salonnière":                                     {},
	"Catégorie:Médecine comme source d'inspiration littéraire": {},
	"Catégorie:Critique littéraire":                            {},
	"Catégorie:Prix littéraire":                                {},
	"Catégorie:Écriture expérimentale":                         {},
	"Catégorie:Littérature musulmane":                          {},
	"Catégorie:Sherlock Holmes":                                {},
	"Catégorie:Image biologie":                                 {},
	"Catégorie:Modèle biologie":                                {},
	"Catégorie:Biologiste":                                     {},
	"Catégorie:Image physique":                                 {},
	"Catégorie:Ébauche physique":                               {},
	"Catégorie:Histoire de la physique":                        {},
	"Catégorie:Physicien":                                      {},
	"Catégorie:Image chimie":                                   {},
	"Catégorie:Chimiste":                                       {},
	"Catégorie:Image géologie":                                 {},
	"Catégorie:Ébauche géologie":                               {},
	"Catégorie:Image technologie":                              {},
	"Catégorie:Ébauche technologie":                            {},
	"Catégorie:Cosmologie":                                     {},
	"Catégorie:Astronomie":                                     {},
}

// Wikiversité lesson levels taught in collège.
var wikiversityLevels = map[int]types.Level{
	7:  types.Level6eme,
	8:  types.Level6eme,
	9:  types.Level5eme,
	10: types.Level4eme,
	11: types.Level3eme,
	12: types.Level3eme,
	13: types.Level3eme,
}

type keywordSubject struct {
	keyword string
	subject types.Subject
}

// Order matters: the first faculty found in a category title wins.
var faculties = []keywordSubject{
	{"mathématiques", types.Mathematiques},
	{"français", types.Francais},
	{"histoire", types.HistoireGeo},
	{"géographie", types.HistoireGeo},
	{"physique", types.PhysiqueChimie},
	{"chimie", types.PhysiqueChimie},
	{"biologie", types.SVT},
	{"géologie", types.SVT},
	{"sciences de la vie et de la terre", types.SVT},
	{"technologie", types.Technologie},
	{"anglais", types.Anglais},
	{"espagnol", types.Espagnol},
}

var subjectKeywords = []struct {
	subject  types.Subject
	keywords []string
}{
	{types.Mathematiques, []string{"mathematique", "maths", "math"}},
	{types.Francais, []string{"francais", "lettre"}},
	{types.HistoireGeo, []string{"histoire", "geographie", "hist", "geo"}},
	{types.SVT, []string{"svt", "sciences vie", "biologie", "geologie"}},
	{types.PhysiqueChimie, []string{"physique", "chimie"}},
	{types.Technologie, []string{"technologie", "techno"}},
	{types.Anglais, []string{"anglais", "english"}},
	{types.Espagnol, []string{"espagnol", "spanish"}},
}

// SubjectFor returns the subject of a category, or types.Autre when unmapped.
func SubjectFor(category string) types.Subject {
	if s, ok := categorySubjects[category]; ok {
		return s
	}
	return types.Autre
}

func BuildMetadata(source types.Source, subject types.Subject, title, url, category string, level types.Level) types.Metadata {
	if level == "" {
		level = types.LevelCollege
	}
	return types.Metadata{
		Source:    source,
		Matiere:   subject,
		Niveau:    level,
		Titre:     title,
		URL:       url,
		Categorie: category,
	}
}

func IsIgnored(category string) bool {
	_, ok := ignoredCategories[category]
	return ok
}

// RootCategories returns the crawl roots of a subject, nil when it has none.
func RootCategories(subject types.Subject) []string {
	for _, r := range rootCategories {
		if r.subject == subject {
			return slices.Clone(r.roots)
		}
	}
	return nil
}

// Subjects lists the crawlable subjects in crawl order.
func Subjects() []types.Subject {
	out := make([]types.Subject, 0, len(rootCategories))
	for _, r := range rootCategories {
		out = append(out, r.subject)
	}
	return out
}

func IsSubject(s types.Subject) bool {
	return s == types.Autre || RootCategories(s) != nil
}

// WikiversityLevel maps a Wikiversité lesson level to a school level.
func WikiversityLevel(n int) (types.Level, bool) {
	l, ok := wikiversityLevels[n]
	return l, ok
}

func WikiversityLevels() []int {
	levels := make([]int, 0, len(wikiversityLevels))
	for n := range wikiversityLevels {
		levels = append(levels, n)
	}
	slices.Sort(levels)
	return levels
}

// SubjectFromFaculties detects the subject of a Wikiversité page from its
// categories, preferring "Leçons de la faculté X" categories.
func SubjectFromFaculties(categories []string) types.Subject {
	for _, c := range categories {
		title := strings.ToLower(c)
		if !strings.Contains(title, "leçons de la faculté") && !strings.Contains(title, "lecons de la faculte") {
			continue
		}
		if s, ok := matchKeyword(title, faculties); ok {
			return s
		}
	}
	for _, c := range categories {
		if s, ok := matchKeyword(strings.ToLower(c), faculties); ok {
			return s
		}
	}
	return types.Autre
}

func matchKeyword(text string, table []keywordSubject) (types.Subject, bool) {
	for _, k := range table {
		if strings.Contains(text, k.keyword) {
			return k.subject, true
		}
	}
	return "", false
}

// SubjectFromKeywords guesses a subject from free text such as a page title
// and URL. Matching ignores case and accents.
func SubjectFromKeywords(text string) types.Subject {
	text = textutil.Fold(text)
	for _, sk := range subjectKeywords {
		for _, kw := range sk.keywords {
			if strings.Contains(text, kw) {
				return sk.subject
			}
		}
	}
	return types.Autre
}
