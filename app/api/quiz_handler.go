package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"scolaire/app/agent"
	"scolaire/types"
)

type QuizGenerator interface {
	Generate(ctx context.Context, matiere types.Subject, titre string, n int, niveau types.Level) (*types.Quiz, error)
}

type QuizHandler struct {
	quizzes QuizGenerator
}

func NewQuizHandler(quizzes QuizGenerator) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

func (h *QuizHandler) HandleQuiz(c *fiber.Ctx) error {
	var params types.QuizParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	quiz, err := h.quizzes.Generate(c.UserContext(), params.Matiere, params.Titre, params.NbQuestions, params.Niveau)
	if err != nil {
		return err
	}
	return c.JSON(quiz)
}

func (h *QuizHandler) HandleValidate(c *fiber.Ctx) error {
	var params types.QuizValidateParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	return c.JSON(agent.ValidateAnswers(params.Quiz, params.Answers))
}
