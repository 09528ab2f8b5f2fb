package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scolaire/model"
	"scolaire/store"
	"scolaire/types"
)

const (
	DefaultQuestions     = 5
	minParagraphChars    = 100
	maxQuestionContext   = 1000
	questionAttempts     = 2
	questionConcurrency  = 3
	minOverlapBytes      = 10
	quizOptions          = 4
	performanceExcellent = 80
	performanceBien      = 60
	performanceMoyen     = 40
)

var (
	ErrLessonNotFound = errors.New("lesson not found")
	ErrLessonTooShort = errors.New("lesson has no usable paragraph")
)

type LessonReader interface {
	GetLessonChunks(ctx context.Context, matiere types.Subject, titre string) ([]types.StoredChunk, error)
}

type QuizService struct {
	lessons LessonReader
	llm     model.LLM
	logger  *slog.Logger
	now     func() time.Time
}

func NewQuizService(lessons LessonReader, llm model.LLM, logger *slog.Logger) *QuizService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizService{
		lessons: lessons,
		llm:     llm,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate builds a quiz of up to n questions, one per paragraph of the
// lesson, picked evenly across it. Questions the model fails to produce are
// replaced with a placeholder.
func (q *QuizService) Generate(ctx context.Context, matiere types.Subject, titre string, n int, niveau types.Level) (*types.Quiz, error) {
	if n <= 0 {
		n = DefaultQuestions
	}
	if niveau == "" {
		niveau = types.LevelCollege
	}
	q.logger.Info("[QUIZ] generating", "matiere", matiere, "titre", titre, "questions", n)

	chunks, err := q.lessons.GetLessonChunks(ctx, matiere, titre)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q (%s)", ErrLessonNotFound, titre, matiere)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson: %w", err)
	}

	paragraphs := lessonParagraphs(reconstructLesson(chunks))
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrLessonTooShort, titre)
	}
	if len(paragraphs) < n {
		q.logger.Warn("[QUIZ] fewer paragraphs than questions", "paragraphs", len(paragraphs), "questions", n)
		n = len(paragraphs)
	}
	selected := selectEvenly(paragraphs, n)

	questions := make([]types.Question, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(questionConcurrency)
	for i, p := range selected {
		g.Go(func() error {
			questions[i] = q.question(gctx, p, niveau, i+1)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &types.Quiz{
		QuizID:      uuid.NewString(),
		Titre:       titre,
		Matiere:     matiere,
		Niveau:      niveau,
		NbQuestions: len(questions),
		Questions:   questions,
		CreatedAt:   q.now(),
	}, nil
}

func (q *QuizService) question(ctx context.Context, paragraph string, niveau types.Level, id int) types.Question {
	if runes := []rune(paragraph); len(runes) > maxQuestionContext {
		paragraph = string(runes[:maxQuestionContext])
	}

	var out types.Question
	if err := model.GenerateJSON(ctx, q.llm, "", QuizPrompt(paragraph, niveau), questionAttempts, &out); err != nil {
		q.logger.Error("[QUIZ] question failed, using fallback", "id", id, "error", err)
		return fallbackQuestion(id)
	}
	if !validQuestion(out) {
		q.logger.Warn("[QUIZ] invalid question, using fallback", "id", id)
		return fallbackQuestion(id)
	}
	out.ID = id
	return out
}

func validQuestion(qu types.Question) bool {
	return strings.TrimSpace(qu.Question) != "" &&
		len(qu.Options) == quizOptions &&
		qu.CorrectAnswer >= 0 && qu.CorrectAnswer < quizOptions
}

func fallbackQuestion(id int) types.Question {
	return types.Question{
		ID:       id,
		Question: "Cette question n'a pas pu être générée correctement. Passez à la suivante.",
		Options: []string{
			"Option A (placeholder)",
			"Option B (placeholder)",
			"Option C (placeholder)",
			"Option D (placeholder)",
		},
		CorrectAnswer: 0,
		Explanation:   "Question de fallback suite à une erreur de génération.",
	}
}

// reconstructLesson joins the chunks of a lesson back into one text, without
// their title prefix and without the overlap each chunk repeats from the
// previous one.
func reconstructLesson(chunks []types.StoredChunk) string {
	texts := make([]string, 0, len(chunks))
	prevIndex, prev := -2, ""
	for _, ch := range chunks {
		full := stripTitle(ch.Record.Text, ch.Record.Metadata.Titre)
		text := full
		idx := ch.Record.Metadata.ChunkIndex
		if idx == prevIndex+1 && prev != "" {
			text = removeOverlap(prev, full)
		}
		if text != "" {
			texts = append(texts, text)
		}
		prevIndex, prev = idx, full
	}
	return strings.Join(texts, "\n\n")
}

func stripTitle(text, titre string) string {
	return strings.TrimSpace(strings.TrimPrefix(text, "["+titre+"]\n"))
}

// removeOverlap drops the longest prefix of next that ends prev and stops at
// a word boundary.
func removeOverlap(prev, next string) string {
	for k := min(len(prev), len(next)); k >= minOverlapBytes; k-- {
		if !strings.HasSuffix(prev, next[:k]) {
			continue
		}
		if k < len(next) {
			r, _ := utf8.DecodeRuneInString(next[k:])
			if !unicode.IsSpace(r) {
				continue
			}
		}
		return strings.TrimSpace(next[k:])
	}
	return next
}

func lessonParagraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) >= minParagraphChars {
			out = append(out, p)
		}
	}
	return out
}

// selectEvenly keeps n items spaced evenly from the start of items.
func selectEvenly(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	step := len(items) / n
	out := make([]string, n)
	for i := range out {
		out[i] = items[i*step]
	}
	return out
}

// ValidateAnswers scores answers against quiz, question by question.
func ValidateAnswers(quiz types.Quiz, answers []int) types.QuizResult {
	res := types.QuizResult{
		Total:   len(quiz.Questions),
		Results: make([]types.AnswerResult, 0, len(quiz.Questions)),
	}
	for i, qu := range quiz.Questions {
		if i >= len(answers) {
			break
		}
		ok := answers[i] == qu.CorrectAnswer
		if ok {
			res.Score++
		}
		res.Results = append(res.Results, types.AnswerResult{
			QuestionID:    i + 1,
			UserAnswer:    answers[i],
			CorrectAnswer: qu.CorrectAnswer,
			IsCorrect:     ok,
			Explanation:   qu.Explanation,
		})
	}
	if res.Total > 0 {
		res.Percentage = float64(res.Score) / float64(res.Total) * 100
	}
	res.PerformanceLevel = performance(res.Percentage)
	return res
}

func performance(pct float64) string {
	switch {
	case pct >= performanceExcellent:
		return "Excellent"
	case pct >= performanceBien:
		return "Bien"
	case pct >= performanceMoyen:
		return "Moyen"
	default:
		return "À revoir"
	}
}
