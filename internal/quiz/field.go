package quiz

import "github.com/makeasinger/quizgen/internal/model"

// FieldText reads the free-text field a path points at
func FieldText(pool *model.QuizPool, path string) (string, bool) {
	p := fieldPtr(pool, path)
	if p == nil {
		return "", false
	}
	return *p, true
}

// SetField overwrites the free-text field a path points at
func SetField(pool *model.QuizPool, path, text string) bool {
	p := fieldPtr(pool, path)
	if p == nil {
		return false
	}
	*p = text
	return true
}

func fieldPtr(pool *model.QuizPool, path string) *string {
	if pool == nil {
		return nil
	}
	qi, oi, field := locate(path)
	if qi < 0 || qi >= len(pool.Questions) {
		return nil
	}
	q := &pool.Questions[qi]

	if oi < 0 {
		switch field {
		case "question":
			return &q.Question
		case "explanation":
			return &q.Explanation
		}
		return nil
	}

	if oi >= len(q.Options) {
		return nil
	}
	o := &q.Options[oi]
	switch field {
	case "text":
		return &o.Text
	case "rationale":
		return &o.Rationale
	}
	return nil
}
