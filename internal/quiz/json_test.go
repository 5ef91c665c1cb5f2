package quiz

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/makeasinger/quizgen/internal/model"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"quiz_pool":[]}`, `{"quiz_pool":[]}`, false},
		{"fenced", "```json\n{\"quiz_pool\":[]}\n```", `{"quiz_pool":[]}`, false},
		{"fenced upper", "```JSON\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", "Here you go:\n{\"a\":1}\nHope this helps!", `{"a":1}`, false},
		{"trailing commas", "Sure {\"a\":[1,2,],}", `{"a":[1,2]}`, false},
		{"control chars", "x {\"a\":\"b\x01c\"}", `{"a":"bc"}`, false},
		{"array", `[{"quiz_pool":[]}]`, `[{"quiz_pool":[]}]`, false},
		{"empty", "   ", "", true},
		{"no object", "I cannot help with that", "", true},
		{"broken", "{\"a\": [1, 2}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Fatalf("expected ErrNoJSON, got %v (%q)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse_UnwrapsArrays(t *testing.T) {
	one, _ := json.Marshal(validPool(1))
	two, _ := json.Marshal(validPool(2))

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"object", string(two), 2},
		{"single element array", "[" + string(two) + "]", 2},
		{"merged array", "[" + string(one) + "," + string(two) + "]", 3},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, typeIssues, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !typeIssues.Valid() {
				t.Fatalf("unexpected type issues:\n%s", typeIssues)
			}
			if len(pool.Questions) != tt.want {
				t.Errorf("questions = %d, want %d", len(pool.Questions), tt.want)
			}
			if tt.name != "merged array" {
				if r := v.Validate(pool); !r.Valid() {
					t.Errorf("round-tripped pool invalid:\n%s", r)
				}
			}
		})
	}
}

func TestDecode_TypeIssues(t *testing.T) {
	raw := `{"quiz_pool":[
		{"id":"one","question":"q","explanation":"e","options":[
			{"key":"A","text":5,"is_correct":"yes","rationale":"r"}
		]},
		"not a question"
	]}`

	pool, result, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(pool.Questions) != 2 {
		t.Fatalf("questions = %d, want 2 (indexes preserved)", len(pool.Questions))
	}

	for _, path := range []string{
		"quiz_pool[0].id",
		"quiz_pool[0].options[0].text",
		"quiz_pool[0].options[0].is_correct",
		"quiz_pool[1]",
	} {
		if !hasIssue(result, path, RuleType) {
			t.Errorf("missing type issue at %s; got:\n%s", path, result)
		}
	}
	if pool.Questions[0].Options[0].Key != "A" {
		t.Error("valid fields should still be decoded")
	}
}

func TestDecode_RootNotObject(t *testing.T) {
	_, result, err := Decode([]byte(`"hello"`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !hasIssue(result, "$", RuleType) {
		t.Errorf("expected root type issue, got:\n%s", result)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, _, err := Decode([]byte(`{"quiz_pool":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestMarshal_EmptyPool(t *testing.T) {
	b, err := Marshal(&model.QuizPool{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"quiz_pool":[]}` {
		t.Errorf("Marshal() = %s", b)
	}
}
