package quiz

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/makeasinger/quizgen/internal/config"
	"github.com/makeasinger/quizgen/internal/model"
)

// OptionsPerQuestion is the required number of answer choices
const OptionsPerQuestion = 5

// Validator checks pools against the quiz schema and the word bounds
type Validator struct {
	limits   config.WordLimits
	validate *validator.Validate
}

func NewValidator(limits config.WordLimits) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{limits: limits, validate: v}
}

// Limits returns the configured word bounds
func (v *Validator) Limits() config.WordLimits {
	return v.limits
}

// Validate collects every violation in pool. It never mutates pool.
func (v *Validator) Validate(pool *model.QuizPool) ValidationResult {
	var result ValidationResult
	if pool == nil {
		result.add(newIssue("quiz_pool", RuleNonEmpty, "null"))
		return result
	}

	v.structural(pool, &result)

	if len(pool.Questions) == 0 {
		result.add(newIssue("quiz_pool", RuleNonEmpty, "0 questions"))
	}

	for qi, q := range pool.Questions {
		if n := len(q.Options); n != OptionsPerQuestion {
			result.add(newIssue(questionPath(qi, "options"), RuleOptionCount,
				fmt.Sprintf("%d options, need %d", n, OptionsPerQuestion)))
		}
		correct := 0
		for _, o := range q.Options {
			if o.Correct() {
				correct++
			}
		}
		if correct != 1 {
			result.add(newIssue(questionPath(qi, "options"), RuleSingleCorrect,
				fmt.Sprintf("%d correct options", correct)))
		}
	}

	v.wordCounts(pool, &result)
	return result
}

func (v *Validator) structural(pool *model.QuizPool, result *ValidationResult) {
	err := v.validate.Struct(pool)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		result.add(newIssue("quiz_pool", RuleType, err.Error()))
		return
	}
	for _, fe := range verrs {
		path := fe.Namespace()
		if idx := strings.Index(path, "."); idx >= 0 {
			path = path[idx+1:]
		}
		observed := ""
		if fe.Tag() != RuleRequired {
			observed = fmt.Sprintf("%v", fe.Value())
		}
		result.add(newIssue(path, fe.Tag(), observed))
	}
}

func (v *Validator) wordCounts(pool *model.QuizPool, result *ValidationResult) {
	l := v.limits
	for qi, q := range pool.Questions {
		checkWords(result, questionPath(qi, "question"), q.Question, l.QuestionMin, l.QuestionMax)
		checkWords(result, questionPath(qi, "explanation"), q.Explanation, l.ExplanationMin, l.ExplanationMax)
		for oi, o := range q.Options {
			checkWords(result, optionPath(qi, oi, "text"), o.Text, l.OptionMin, l.OptionMax)
			checkWords(result, optionPath(qi, oi, "rationale"), o.Rationale, 0, l.RationaleMax)
		}
	}
}

// checkWords skips empty text, which the required rule already reports.
// Whitespace passes required, so it is counted as zero words here.
func checkWords(result *ValidationResult, path, text string, minWords, maxWords int) {
	if text == "" {
		return
	}
	n := WordCount(text)
	rule := ""
	switch {
	case n < minWords:
		rule = RuleMinWords
	case maxWords > 0 && n > maxWords:
		rule = RuleMaxWords
	default:
		return
	}
	issue := newIssue(path, rule, "")
	issue.Words, issue.Min, issue.Max = n, minWords, maxWords
	result.add(issue)
}
