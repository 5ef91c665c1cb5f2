package quiz

import (
	"fmt"
	"strings"

	"github.com/makeasinger/quizgen/internal/config"
	"github.com/makeasinger/quizgen/internal/model"
)

func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func boolPtr(b bool) *bool {
	return &b
}

// validQuestion builds a question that satisfies the default bounds
func validQuestion(id int) model.Question {
	q := model.Question{
		ID:          id,
		Question:    words(15, fmt.Sprintf("q%d-", id)),
		Explanation: words(20, "e"),
	}
	for i, key := range []string{"A", "B", "C", "D", "E"} {
		q.Options = append(q.Options, model.Option{
			Key:       key,
			Text:      words(12, key),
			IsCorrect: boolPtr(i == 0),
			Rationale: words(8, "r"),
		})
	}
	return q
}

func validPool(n int) *model.QuizPool {
	pool := &model.QuizPool{}
	for i := 1; i <= n; i++ {
		pool.Questions = append(pool.Questions, validQuestion(i))
	}
	return pool
}

func newTestValidator() *Validator {
	return NewValidator(config.DefaultWordLimits())
}

func hasIssue(r ValidationResult, path, rule string) bool {
	for _, issue := range r.Issues {
		if issue.Path == path && issue.Rule == rule {
			return true
		}
	}
	return false
}
