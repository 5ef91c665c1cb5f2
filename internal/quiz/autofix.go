package quiz

import (
	"strings"

	"github.com/makeasinger/quizgen/internal/model"
)

// AutoFix returns a copy of pool with over-length text truncated to its
// maximum at a word boundary. Under-length text is left for the repair stages.
func (v *Validator) AutoFix(pool *model.QuizPool) *model.QuizPool {
	out := Clone(pool)
	if out == nil {
		return nil
	}

	l := v.limits
	for qi := range out.Questions {
		q := &out.Questions[qi]
		q.Question = truncateWords(q.Question, l.QuestionMax)
		q.Explanation = truncateWords(q.Explanation, l.ExplanationMax)
		for oi := range q.Options {
			o := &q.Options[oi]
			o.Text = truncateWords(o.Text, l.OptionMax)
			o.Rationale = truncateWords(o.Rationale, l.RationaleMax)
		}
	}
	return out
}

func truncateWords(s string, maxWords int) string {
	if maxWords <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ")
}

// Clone deep-copies a pool
func Clone(pool *model.QuizPool) *model.QuizPool {
	if pool == nil {
		return nil
	}
	out := &model.QuizPool{Questions: make([]model.Question, len(pool.Questions))}
	for qi, q := range pool.Questions {
		cq := q
		cq.Options = make([]model.Option, len(q.Options))
		for oi, o := range q.Options {
			co := o
			if o.IsCorrect != nil {
				b := *o.IsCorrect
				co.IsCorrect = &b
			}
			cq.Options[oi] = co
		}
		out.Questions[qi] = cq
	}
	return out
}
