package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type ChatParams struct {
	Question    string   `json:"question" validate:"required,max=2000"`
	Matiere     Subject  `json:"matiere" validate:"omitempty,oneof=mathematiques francais histoire_geo svt physique_chimie technologie anglais espagnol autre"`
	Niveau      Level    `json:"niveau" validate:"omitempty,oneof=6eme 5eme 4eme 3eme college"`
	Collections []string `json:"collections" validate:"omitempty,dive,oneof=cours_college mes_cours"`
}

type DetectParams struct {
	Question string `json:"question" validate:"required"`
}

type QuizParams struct {
	Matiere     Subject `json:"matiere" validate:"required,oneof=mathematiques francais histoire_geo svt physique_chimie technologie anglais espagnol autre"`
	Titre       string  `json:"titre" validate:"required"`
	NbQuestions int     `json:"nb_questions" validate:"omitempty,min=3,max=10"`
	Niveau      Level   `json:"niveau" validate:"omitempty,oneof=6eme 5eme 4eme 3eme college"`
}

type QuizValidateParams struct {
	Quiz    Quiz  `json:"quiz"`
	Answers []int `json:"answers" validate:"required,dive,min=0,max=3"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *ChatParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *DetectParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *QuizParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *QuizValidateParams) Validate() map[string]string {
	errors := validateStruct(params)
	if errors == nil && len(params.Answers) != len(params.Quiz.Questions) {
		errors = map[string]string{"Answers": "must answer every question"}
	}
	return errors
}

type ChatResponse struct {
	Answer    string      `json:"answer"`
	Sources   []SourceRef `json:"sources"`
	NbSources int         `json:"nb_sources"`
	Niveau    Level       `json:"niveau"`
	Timestamp time.Time   `json:"timestamp"`
}

type SourceRef struct {
	Titre      string  `json:"titre"`
	URL        string  `json:"url"`
	Matiere    Subject `json:"matiere"`
	Source     Source  `json:"source"`
	Similarity float64 `json:"similarity"`
}

type DetectResponse struct {
	NiveauDetecte     Level           `json:"niveau_detecte"`
	MatiereDetectee   Subject         `json:"matiere_detectee,omitempty"`
	MatieresPossibles []Subject       `json:"matieres_possibles"`
	Ambigue           bool            `json:"ambigue"`
	Scores            map[Subject]int `json:"scores"`
}

type Question struct {
	ID            int      `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

type Quiz struct {
	QuizID      string     `json:"quiz_id"`
	Titre       string     `json:"titre"`
	Matiere     Subject    `json:"matiere"`
	Niveau      Level      `json:"niveau"`
	NbQuestions int        `json:"nb_questions"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"created_at"`
}

type AnswerResult struct {
	QuestionID    int    `json:"question_id"`
	UserAnswer    int    `json:"user_answer"`
	CorrectAnswer int    `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
}

type QuizResult struct {
	Score            int            `json:"score"`
	Total            int            `json:"total"`
	Percentage       float64        `json:"percentage"`
	PerformanceLevel string         `json:"performance_level"`
	Results          []AnswerResult `json:"results"`
}

type PDFInfo struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Status   string    `json:"status"` // pending, archived, rejected
	Modified time.Time `json:"modified"`
}
