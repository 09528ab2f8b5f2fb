package agent

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts the tokens of a prompt fragment.
type TokenCounter func(string) int

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens counts with the gpt-3.5-turbo encoding, close enough for
// Llama-family budgets. Without the encoding it falls back to chars/4.
func CountTokens(s string) int {
	encOnce.Do(func() {
		var err error
		enc, err = tiktoken.EncodingForModel("gpt-3.5-turbo")
		if err != nil {
			slog.Warn("[TOKENS] tiktoken unavailable, counting chars/4", "error", err)
			enc = nil
		}
	})
	if enc == nil {
		return ApproxTokens(s)
	}
	return len(enc.Encode(s, nil, nil))
}

func ApproxTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}
