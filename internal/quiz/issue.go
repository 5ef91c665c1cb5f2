package quiz

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Issue rules
const (
	RuleType          = "type"
	RuleRequired      = "required"
	RuleOneOf         = "oneof"
	RuleMin           = "min"
	RuleNonEmpty      = "non_empty"
	RuleOptionCount   = "option_count"
	RuleSingleCorrect = "single_correct"
	RuleMinWords      = "min_words"
	RuleMaxWords      = "max_words"
)

// Issue is one schema or word-count violation. Question and Option are
// indexes into the pool, -1 when the issue is not scoped to one.
type Issue struct {
	Path     string `json:"path"`
	Rule     string `json:"rule"`
	Observed string `json:"observed,omitempty"`
	Words    int    `json:"words,omitempty"`
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	Question int    `json:"question"`
	Option   int    `json:"option"`
	Field    string `json:"field,omitempty"`
}

func (i Issue) String() string {
	switch i.Rule {
	case RuleMinWords:
		return fmt.Sprintf("%s: %d words (TOO SHORT, need %d-%d)", i.Path, i.Words, i.Min, i.Max)
	case RuleMaxWords:
		return fmt.Sprintf("%s: %d words (TOO LONG, need %d-%d)", i.Path, i.Words, i.Min, i.Max)
	}
	if i.Observed != "" {
		return fmt.Sprintf("%s: %s (got %s)", i.Path, i.Rule, i.Observed)
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Rule)
}

// IsWordCount reports whether the issue is a word bound violation
func (i Issue) IsWordCount() bool {
	return i.Rule == RuleMinWords || i.Rule == RuleMaxWords
}

// ValidationResult is the ordered list of issues found in one pass
type ValidationResult struct {
	Issues []Issue `json:"issues"`
}

// Valid reports whether no issue was found
func (r ValidationResult) Valid() bool {
	return len(r.Issues) == 0
}

func (r *ValidationResult) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// TooShort returns the under-length issues
func (r ValidationResult) TooShort() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Rule == RuleMinWords {
			out = append(out, issue)
		}
	}
	return out
}

// WordCountIssues returns under and over-length issues
func (r ValidationResult) WordCountIssues() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.IsWordCount() {
			out = append(out, issue)
		}
	}
	return out
}

func (r ValidationResult) String() string {
	if r.Valid() {
		return "no issues"
	}
	lines := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		lines[i] = issue.String()
	}
	return strings.Join(lines, "\n")
}

var pathRe = regexp.MustCompile(`^quiz_pool\[(\d+)\](?:\.options\[(\d+)\])?(?:\.([a-z_]+))?$`)

// locate splits a field path into question index, option index and field name
func locate(path string) (question, option int, field string) {
	question, option = -1, -1
	m := pathRe.FindStringSubmatch(path)
	if m == nil {
		if idx := strings.LastIndex(path, "."); idx >= 0 {
			return question, option, path[idx+1:]
		}
		return question, option, path
	}
	question, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		option, _ = strconv.Atoi(m[2])
	}
	return question, option, m[3]
}

func newIssue(path, rule, observed string) Issue {
	q, o, field := locate(path)
	return Issue{Path: path, Rule: rule, Observed: observed, Question: q, Option: o, Field: field}
}

func questionPath(q int, field string) string {
	return fmt.Sprintf("quiz_pool[%d].%s", q, field)
}

func optionPath(q, o int, field string) string {
	return fmt.Sprintf("quiz_pool[%d].options[%d].%s", q, o, field)
}

// WordCount counts whitespace-separated words
func WordCount(s string) int {
	return len(strings.Fields(s))
}
