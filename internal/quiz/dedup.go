package quiz

import (
	"strings"

	"github.com/makeasinger/quizgen/internal/model"
)

// Normalize lowercases and collapses whitespace for duplicate detection
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Dedupe drops questions whose normalized text was already seen, keeping order
func Dedupe(questions []model.Question) []model.Question {
	seen := make(map[string]struct{}, len(questions))
	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		key := Normalize(q.Question)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// Renumber assigns ids start, start+1, ... in place
func Renumber(questions []model.Question, start int) {
	for i := range questions {
		questions[i].ID = start + i
	}
}
