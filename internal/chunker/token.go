package chunker

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens approximates a model token count as the larger of ~4/3
// tokens per word and ~1 token per 4 characters.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	byWords := (words*4 + 2) / 3
	byChars := (utf8.RuneCountInString(text) + 3) / 4
	return max(byWords, byChars)
}
