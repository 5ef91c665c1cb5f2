package quiz

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/makeasinger/quizgen/internal/model"
)

// ErrNoJSON is returned when a reply contains no usable JSON
var ErrNoJSON = errors.New("no JSON object found in response")

var (
	fenceOpenRe     = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceCloseRe    = regexp.MustCompile("\\s*```\\s*$")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	controlCharRe   = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ExtractJSON pulls the JSON document out of a model reply that may carry
// code fences or surrounding prose.
func ExtractJSON(text string) (string, error) {
	raw := strings.TrimSpace(text)
	if strings.HasPrefix(raw, "```") {
		raw = fenceOpenRe.ReplaceAllString(raw, "")
		raw = fenceCloseRe.ReplaceAllString(raw, "")
	}
	raw = strings.TrimSpace(strings.TrimRight(raw, "`"))
	if raw == "" {
		return "", ErrNoJSON
	}
	if json.Valid([]byte(raw)) {
		return raw, nil
	}

	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first == -1 || last <= first {
		return "", ErrNoJSON
	}

	candidate := clean(raw[first : last+1])
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	return "", ErrNoJSON
}

func clean(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return controlCharRe.ReplaceAllString(s, "")
}

// Parse extracts and decodes a model reply
func Parse(text string) (*model.QuizPool, ValidationResult, error) {
	js, err := ExtractJSON(text)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	return Decode([]byte(js))
}

// Marshal renders a pool the way the model is asked to produce it
func Marshal(pool *model.QuizPool) ([]byte, error) {
	if pool == nil {
		pool = &model.QuizPool{}
	}
	if pool.Questions == nil {
		return json.Marshal(model.QuizPool{Questions: []model.Question{}})
	}
	return json.Marshal(pool)
}
