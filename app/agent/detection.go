package agent

import (
	"slices"
	"strings"
	"unicode/utf8"

	"scolaire/textutil"
	"scolaire/types"
)

type subjectKeywords struct {
	subject  types.Subject
	keywords []string
}

// Order breaks ties between equal scores.
var keywordsBySubject = []subjectKeywords{
	{types.Mathematiques, []string{
		"théorème", "pythagore", "triangle", "équation", "fraction", "décimal",
		"géométrie", "calcul", "nombre", "multiplication", "division", "addition",
		"soustraction", "aire", "périmètre", "volume", "angle", "parallèle",
		"perpendiculaire", "symétrie", "fonction", "graphique", "algèbre",
		"proportionnalité", "pourcentage", "statistique", "probabilité",
	}},
	{types.Francais, []string{
		"verbe", "conjugaison", "grammaire", "orthographe", "accord", "participe",
		"sujet", "complément", "pronom", "adjectif", "adverbe", "phrase",
		"ponctuation", "temps", "imparfait", "passé", "futur", "présent",
		"conditionnel", "subjonctif", "littérature", "poème", "roman", "auteur",
		"écrivain", "vocabulaire", "synonyme", "antonyme", "homonyme",
	}},
	{types.HistoireGeo, []string{
		"guerre", "révolution", "roi", "empereur", "moyen âge", "renaissance",
		"antiquité", "préhistoire", "napoléon", "louis", "république", "empire",
		"démocratie", "monarchie", "bataille", "traité", "colonisation",
		"continent", "pays", "ville", "capitale", "océan", "mer", "montagne",
		"fleuve", "climat", "population", "frontière", "carte", "région",
	}},
	{types.SVT, []string{
		"cellule", "organe", "corps", "respiration", "digestion", "circulation",
		"reproduction", "adn", "génétique", "évolution", "espèce", "animal",
		"plante", "photosynthèse", "écosystème", "chaîne alimentaire", "fossile",
		"roche", "séisme", "volcan", "érosion", "tectonique", "planète", "terre",
	}},
	{types.PhysiqueChimie, []string{
		"atome", "molécule", "réaction", "chimique", "élément", "ion", "acide",
		"base", "ph", "électricité", "circuit", "courant", "tension", "résistance",
		"énergie", "force", "vitesse", "masse", "poids", "lumière", "optique",
		"lentille", "miroir", "son", "onde", "température", "chaleur",
	}},
	{types.Technologie, []string{
		"ordinateur", "programmation", "robot", "algorithme", "code", "logiciel",
		"matériau", "construction", "pont", "structure", "énergie renouvelable",
		"électronique", "circuit électrique", "capteur", "actionneur", "design",
		"prototype", "innovation", "automatisme",
	}},
	{types.Anglais, []string{
		"english", "anglais", "verb", "grammar", "vocabulary", "tense",
		"present", "past", "future", "question", "answer",
	}},
	{types.Espagnol, []string{
		"español", "espagnol", "verbo", "gramática", "vocabulario", "tiempo",
		"presente", "pasado", "futuro", "pregunta", "respuesta",
	}},
}

// Explicit mentions, checked in this order on the folded question.
var levelMentions = []struct {
	level types.Level
	words []string
}{
	{types.Level6eme, []string{"6eme", "sixieme"}},
	{types.Level5eme, []string{"5eme", "cinquieme"}},
	{types.Level4eme, []string{"4eme", "quatrieme"}},
	{types.Level3eme, []string{"3eme", "troisieme", "brevet"}},
}

// SubjectScores holds the outcome of DetectSubject.
type SubjectScores struct {
	Main      types.Subject // empty when no keyword matched
	Possibles []types.Subject
	Scores    map[types.Subject]int
}

// DetectSubject counts the keywords of each subject found in question,
// ignoring case and accents. The two best subjects are reported as possible
// when their scores differ by at most one.
func DetectSubject(question string) SubjectScores {
	q := textutil.Fold(question)
	res := SubjectScores{
		Possibles: []types.Subject{},
		Scores:    make(map[types.Subject]int, len(keywordsBySubject)),
	}

	ranked := make([]types.Subject, 0, len(keywordsBySubject))
	for _, sk := range keywordsBySubject {
		n := 0
		for _, kw := range sk.keywords {
			if strings.Contains(q, textutil.Fold(kw)) {
				n++
			}
		}
		res.Scores[sk.subject] = n
		ranked = append(ranked, sk.subject)
	}
	slices.SortStableFunc(ranked, func(a, b types.Subject) int {
		return res.Scores[b] - res.Scores[a]
	})

	top, second := res.Scores[ranked[0]], res.Scores[ranked[1]]
	if top == 0 {
		return res
	}
	res.Main = ranked[0]
	if second > 0 && top-second <= 1 {
		res.Possibles = []types.Subject{ranked[0], ranked[1]}
	}
	return res
}

// DetectLevel returns an explicitly mentioned level, or guesses one from the
// length of the question and of its words.
func DetectLevel(question string) types.Level {
	q := textutil.Fold(question)
	for _, m := range levelMentions {
		for _, w := range m.words {
			if strings.Contains(q, w) {
				return m.level
			}
		}
	}

	words := strings.Fields(question)
	total := 0
	for _, w := range words {
		total += utf8.RuneCountInString(w)
	}
	avg := float64(total) / float64(max(len(words), 1))

	switch n := len(words); {
	case n < 8 && avg < 6:
		return types.Level6eme
	case n < 12 && avg < 7:
		return types.Level5eme
	case n < 16:
		return types.Level4eme
	default:
		return types.Level3eme
	}
}

func AutoDetect(question string) types.DetectResponse {
	subject := DetectSubject(question)
	return types.DetectResponse{
		NiveauDetecte:     DetectLevel(question),
		MatiereDetectee:   subject.Main,
		MatieresPossibles: subject.Possibles,
		Ambigue:           len(subject.Possibles) > 1,
		Scores:            subject.Scores,
	}
}
