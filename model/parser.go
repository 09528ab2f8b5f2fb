package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var ErrNoJSON = errors.New("no valid json found")

// retryBackoff is multiplied by the attempt number between attempts.
var retryBackoff = 300 * time.Millisecond

// GenerateJSON asks llm for a JSON object and decodes it into out. After an
// invalid answer the model is asked to repair its previous output.
func GenerateJSON(ctx context.Context, llm LLM, system, prompt string, maxAttempts int, out any) error {
	var (
		lastErr error
		raw     string
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		p := prompt
		if attempt > 1 && raw != "" {
			p = buildRepairPrompt(raw)
		}
		slog.Debug("[LLM] json attempt", "attempt", attempt)

		var err error
		raw, err = llm.Generate(ctx, system, p)
		if err == nil {
			var obj string
			if obj, err = extractJSON(raw); err == nil {
				if err = json.Unmarshal([]byte(obj), out); err == nil {
					return nil
				}
			}
		}
		lastErr = err

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
	}
	return fmt.Errorf("json generation failed after %d attempts: %w", maxAttempts, lastErr)
}

// extractJSON returns the text from the first '{' to the last '}', which also
// drops markdown fences around the object.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start == -1 || end == -1 || end <= start {
		return s, ErrNoJSON
	}
	return s[start : end+1], nil
}

func buildRepairPrompt(badOutput string) string {
	return fmt.Sprintf(`
Ta réponse précédente n'était pas un JSON valide.

Corrige ce JSON.

RÈGLES:
- Réponds UNIQUEMENT avec du JSON valide
- N'ajoute ni ne retire aucune information
- Aucune explication
- Pas de markdown
- Aucun texte en dehors du JSON

RÉPONSE INVALIDE:
<<<
%s
>>>

Renvoie uniquement le JSON corrigé.
`, badOutput)
}
