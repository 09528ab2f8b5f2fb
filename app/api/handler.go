package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"scolaire/app/agent"
	"scolaire/types"
)

type Answerer interface {
	Answer(ctx context.Context, question string, matiere types.Subject, niveau types.Level, collections []string) (*types.ChatResponse, error)
}

type label[T any] struct {
	ID  T      `json:"id"`
	Nom string `json:"nom"`
}

var matieres = []label[types.Subject]{
	{types.Mathematiques, "Mathématiques"},
	{types.Francais, "Français"},
	{types.HistoireGeo, "Histoire-Géographie"},
	{types.SVT, "SVT"},
	{types.PhysiqueChimie, "Physique-Chimie"},
	{types.Technologie, "Technologie"},
	{types.Anglais, "Anglais"},
	{types.Espagnol, "Espagnol"},
}

var niveaux = []label[types.Level]{
	{types.Level6eme, "6ème"},
	{types.Level5eme, "5ème"},
	{types.Level4eme, "4ème"},
	{types.Level3eme, "3ème"},
	{types.LevelCollege, "Collège (tous niveaux)"},
}

type RequestHandler struct {
	answerer Answerer
	logger   *slog.Logger
}

func NewRequestHandler(answerer Answerer, logger *slog.Logger) *RequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestHandler{
		answerer: answerer,
		logger:   logger,
	}
}

func (h *RequestHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	h.logger.Info("[CHAT] question received",
		"matiere", params.Matiere,
		"niveau", params.Niveau,
		"collections", params.Collections,
	)
	resp, err := h.answerer.Answer(c.UserContext(), params.Question, params.Matiere, params.Niveau, params.Collections)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *RequestHandler) HandleDetect(c *fiber.Ctx) error {
	var params types.DetectParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	return c.JSON(agent.AutoDetect(params.Question))
}

func (h *RequestHandler) HandleMatieres(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"matieres": matieres})
}

func (h *RequestHandler) HandleNiveaux(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"niveaux": niveaux})
}
