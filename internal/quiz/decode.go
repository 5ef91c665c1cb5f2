package quiz

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/makeasinger/quizgen/internal/model"
)

// Decode parses raw JSON into a pool. Type mismatches become "type" issues and
// the offending value is left zero; only malformed JSON returns an error.
// Arrays of pools are unwrapped or merged first.
func Decode(raw []byte) (*model.QuizPool, ValidationResult, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, ValidationResult{}, fmt.Errorf("failed to decode quiz JSON: %w", err)
	}
	return decodeTree(unwrapArray(root))
}

// unwrapArray turns [{"quiz_pool":[...]}] into the single object and merges
// several pool objects into one.
func unwrapArray(root any) any {
	items, ok := root.([]any)
	if !ok {
		return root
	}
	if len(items) == 1 {
		if obj, ok := items[0].(map[string]any); ok {
			return obj
		}
		return root
	}
	if len(items) == 0 {
		return root
	}

	var merged []any
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return root
		}
		pool, ok := obj["quiz_pool"].([]any)
		if !ok {
			return root
		}
		merged = append(merged, pool...)
	}
	return map[string]any{"quiz_pool": merged}
}

func decodeTree(root any) (*model.QuizPool, ValidationResult, error) {
	var result ValidationResult
	pool := &model.QuizPool{}

	obj, ok := root.(map[string]any)
	if !ok {
		result.add(newIssue("$", RuleType, "expected object, got "+kind(root)))
		return pool, result, nil
	}

	rawPool, present := obj["quiz_pool"]
	if !present || rawPool == nil {
		return pool, result, nil
	}
	items, ok := rawPool.([]any)
	if !ok {
		result.add(newIssue("quiz_pool", RuleType, "expected array, got "+kind(rawPool)))
		return pool, result, nil
	}

	pool.Questions = make([]model.Question, len(items))
	for qi, item := range items {
		qobj, ok := item.(map[string]any)
		if !ok {
			result.add(newIssue(fmt.Sprintf("quiz_pool[%d]", qi), RuleType, "expected object, got "+kind(item)))
			continue
		}
		pool.Questions[qi] = decodeQuestion(qi, qobj, &result)
	}
	return pool, result, nil
}

func decodeQuestion(qi int, obj map[string]any, result *ValidationResult) model.Question {
	var q model.Question

	if v, ok := obj["id"]; ok && v != nil {
		n, isNum := v.(json.Number)
		id, err := n.Int64()
		if !isNum || err != nil {
			result.add(newIssue(questionPath(qi, "id"), RuleType, "expected integer, got "+kind(v)))
		} else {
			q.ID = int(id)
		}
	}
	q.Question = stringField(obj, "question", questionPath(qi, "question"), result)
	q.Explanation = stringField(obj, "explanation", questionPath(qi, "explanation"), result)

	rawOpts, present := obj["options"]
	if !present || rawOpts == nil {
		return q
	}
	opts, ok := rawOpts.([]any)
	if !ok {
		result.add(newIssue(questionPath(qi, "options"), RuleType, "expected array, got "+kind(rawOpts)))
		return q
	}

	q.Options = make([]model.Option, len(opts))
	for oi, item := range opts {
		oobj, ok := item.(map[string]any)
		if !ok {
			result.add(newIssue(fmt.Sprintf("quiz_pool[%d].options[%d]", qi, oi), RuleType, "expected object, got "+kind(item)))
			continue
		}
		q.Options[oi] = decodeOption(qi, oi, oobj, result)
	}
	return q
}

func decodeOption(qi, oi int, obj map[string]any, result *ValidationResult) model.Option {
	var o model.Option

	o.Key = stringField(obj, "key", optionPath(qi, oi, "key"), result)
	o.Text = stringField(obj, "text", optionPath(qi, oi, "text"), result)
	o.Rationale = stringField(obj, "rationale", optionPath(qi, oi, "rationale"), result)

	if v, ok := obj["is_correct"]; ok && v != nil {
		b, isBool := v.(bool)
		if !isBool {
			result.add(newIssue(optionPath(qi, oi, "is_correct"), RuleType, "expected boolean, got "+kind(v)))
		} else {
			o.IsCorrect = &b
		}
	}
	return o
}

func stringField(obj map[string]any, name, path string, result *ValidationResult) string {
	v, ok := obj[name]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		result.add(newIssue(path, RuleType, "expected string, got "+kind(v)))
		return ""
	}
	return s
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
