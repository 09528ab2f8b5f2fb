package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"scolaire/types"
)

type ChunkCounter interface {
	CountChunks(ctx context.Context, collection string) (int64, error)
}

type CheckHandler struct {
	counter ChunkCounter
}

func NewCheckHandler(counter ChunkCounter) *CheckHandler {
	return &CheckHandler{counter: counter}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleStats reports how many chunks each collection holds.
func (h *CheckHandler) HandleStats(c *fiber.Ctx) error {
	stats := make(fiber.Map, 2)
	for _, coll := range []string{types.CollectionCours, types.CollectionPersonal} {
		n, err := h.counter.CountChunks(c.UserContext(), coll)
		if err != nil {
			return err
		}
		stats[coll] = n
	}
	return c.JSON(stats)
}
