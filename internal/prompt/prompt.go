package prompt

import (
	"fmt"
	"strings"

	"github.com/makeasinger/quizgen/internal/config"
	"github.com/makeasinger/quizgen/internal/model"
	"github.com/makeasinger/quizgen/internal/quiz"
)

// maxShortOptions caps the highlighted under-length list in critic prompts
const maxShortOptions = 10

const schemaBlock = `{
  "quiz_pool": [
    {
      "id": int,
      "question": str,
      "explanation": str,
      "options": [
        {"key": "A", "text": str, "is_correct": bool, "rationale": str},
        {"key": "B", "text": str, "is_correct": bool, "rationale": str},
        {"key": "C", "text": str, "is_correct": bool, "rationale": str},
        {"key": "D", "text": str, "is_correct": bool, "rationale": str},
        {"key": "E", "text": str, "is_correct": bool, "rationale": str}
      ]
    }
  ]
}`

// Builder renders the prompts for generation and repair
type Builder struct {
	limits config.WordLimits
}

func NewBuilder(limits config.WordLimits) *Builder {
	return &Builder{limits: limits}
}

// Generator returns the system and user prompts for a work unit
func (b *Builder) Generator(unit model.WorkUnit) (system, user string) {
	if unit.IsSoftSkills() {
		return b.softSkillsSystem(unit.Count), b.generatorUser(unit)
	}
	return b.generatorSystem(unit), b.generatorUser(unit)
}

func (b *Builder) generatorSystem(unit model.WorkUnit) string {
	l := b.limits
	branch := ""
	if unit.Branch != "" {
		branch = fmt.Sprintf("\nBranch: %s", unit.Branch)
	}

	return fmt.Sprintf(`You are a precise subject matter expert and lead interviewer for the role %s in the %s sector.
Sector: %s%s
Role: %s
Level: %d/5

Cover the full professional scope of the role: core skills and domain knowledge, tools and workflows,
standards and compliance, situational judgement, communication and professional conduct.

Generate EXACTLY %d unique multiple-choice questions (keys A-E) for interview level %d.

WORD COUNTS (output is rejected otherwise):
- Question text: %d-%d words
- Option text: %d-%d words, each a complete sentence
- Explanation: %d-%d words, explaining why the correct answer is right
- Rationale: at most %d words

RULES:
- Exactly 5 options per question and exactly one with "is_correct": true
- Options must be realistic and similar in length
- Do not invent tools, products or companies
- Output ONLY a JSON object with this schema, no markdown or commentary:

%s`,
		display(unit.Career), display(unit.Sector),
		display(unit.Sector), branch, display(unit.Career), unit.Level,
		unit.Count, unit.Level,
		l.QuestionMin, l.QuestionMax,
		l.OptionMin, l.OptionMax,
		l.ExplanationMin, l.ExplanationMax,
		l.RationaleMax,
		schemaBlock)
}

func (b *Builder) softSkillsSystem(count int) string {
	l := b.limits
	return fmt.Sprintf(`You are an expert behavioural interviewer specializing in soft skills assessment.

Generate EXACTLY %d scenario-based soft skill interview questions. Each question describes a workplace
situation. Cover communication, teamwork, leadership, problem-solving, adaptability, time management,
conflict resolution and emotional intelligence.

WORD COUNTS (output is rejected otherwise):
- Question text: %d-%d words
- Option text: %d-%d words, each a complete sentence
- Explanation: %d-%d words
- Rationale: at most %d words

Exactly 5 options per question and exactly one with "is_correct": true.
Output ONLY a JSON object with this schema:

%s`,
		count,
		l.QuestionMin, l.QuestionMax,
		l.OptionMin, l.OptionMax,
		l.ExplanationMin, l.ExplanationMax,
		l.RationaleMax,
		schemaBlock)
}

func (b *Builder) generatorUser(unit model.WorkUnit) string {
	return fmt.Sprintf("Generate %d questions numbered with ids %d to %d. Return only the JSON object.",
		unit.Count, unit.FirstID, unit.FirstID+unit.Count-1)
}

// Critic returns the primary critic prompts for a failed payload
func (b *Builder) Critic(payload []byte, result quiz.ValidationResult) (system, user string) {
	l := b.limits
	system = fmt.Sprintf(`You are an expert QA reviewer for interview question JSON data.
You are given a quiz_pool that FAILED validation. Fix it so it passes every rule.

REQUIRED SCHEMA:
%s

WORD COUNTS:
- Question: %d-%d words
- Explanation: %d-%d words
- Option text: %d-%d words
- Rationale: at most %d words

Expand short text with real detail instead of filler. Keep exactly 5 options per question and
exactly one correct option. Preserve the meaning and the number of questions. Replace any
fictional tool, product or company with a real one.

Return ONLY the corrected JSON object, not wrapped in an array, with no markdown.`,
		schemaBlock,
		l.QuestionMin, l.QuestionMax,
		l.ExplanationMin, l.ExplanationMax,
		l.OptionMin, l.OptionMax,
		l.RationaleMax)

	var sb strings.Builder
	sb.WriteString("VALIDATION ERRORS:\n")
	sb.WriteString(result.String())
	if summary := b.WordCountSummary(result); summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(summary)
	}
	sb.WriteString("\n\nJSON TO FIX:\n")
	sb.Write(payload)
	return system, sb.String()
}

// Review asks the critic to proofread a complete career/level quiz that
// already passed validation
func (b *Builder) Review(payload []byte) (system, user string) {
	l := b.limits
	system = fmt.Sprintf(`You are an expert QA reviewer for interview question JSON data.
You are given a complete quiz_pool for one career and level. Review it and correct factual errors,
ambiguous wording, options that give the answer away and any text outside the word counts.

REQUIRED SCHEMA:
%s

WORD COUNTS:
- Question: %d-%d words
- Explanation: %d-%d words
- Option text: %d-%d words
- Rationale: at most %d words

Keep every question, its id, exactly 5 options and exactly one correct option.

Return ONLY the corrected JSON object, not wrapped in an array, with no markdown.`,
		schemaBlock,
		l.QuestionMin, l.QuestionMax,
		l.ExplanationMin, l.ExplanationMax,
		l.OptionMin, l.OptionMax,
		l.RationaleMax)

	return system, "Review and correct this quiz JSON. Ensure all word counts are valid.\n\n" + string(payload)
}

// SimpleCritic is the terse fallback used after the primary critic gives up
func (b *Builder) SimpleCritic(payload []byte, result quiz.ValidationResult) (system, user string) {
	l := b.limits
	system = fmt.Sprintf(`You are a JSON repair assistant. Fix this quiz JSON to match the schema:
%s

- Question %d-%d words, explanation %d-%d words, option text %d-%d words, rationale at most %d words
- Exactly 5 options per question and exactly one correct option
Return ONLY the JSON object.`,
		schemaBlock,
		l.QuestionMin, l.QuestionMax,
		l.ExplanationMin, l.ExplanationMax,
		l.OptionMin, l.OptionMax,
		l.RationaleMax)

	user = fmt.Sprintf("Errors:\n%s\n\nJSON:\n%s", result.String(), payload)
	return system, user
}

// Expansion is one under-length field the word fixer must lengthen
type Expansion struct {
	Path  string `json:"path"`
	Text  string `json:"text"`
	Words int    `json:"words"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// WordFixer asks for longer versions of the given fields only
func (b *Builder) WordFixer(fields []Expansion) (system, user string) {
	system = `You are a text expansion assistant for interview questions.
Each field below is TOO SHORT. Rewrite every one to fall inside its word range, keeping the meaning
and writing a complete professional sentence. Do not touch anything else.

Return ONLY this JSON object:
{"fixes": [{"path": str, "text": str}]}`

	var sb strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&sb, "- path: %s\n  current (%d words): %q\n  need: %d-%d words\n", f.Path, f.Words, f.Text, f.Min, f.Max)
	}
	return system, sb.String()
}

// WordCountSummary highlights under and over-length fields for the critic.
// Under-length options are capped at ten entries.
func (b *Builder) WordCountSummary(result quiz.ValidationResult) string {
	issues := result.WordCountIssues()
	if len(issues) == 0 {
		return ""
	}

	var shortOpts, others []quiz.Issue
	for _, issue := range issues {
		if issue.Rule == quiz.RuleMinWords && issue.Option >= 0 {
			shortOpts = append(shortOpts, issue)
		} else {
			others = append(others, issue)
		}
	}

	var lines []string
	if len(shortOpts) > 0 {
		lines = append(lines, fmt.Sprintf("Found %d options that are TOO SHORT:", len(shortOpts)))
		for _, issue := range shortOpts[:min(len(shortOpts), maxShortOptions)] {
			lines = append(lines, fmt.Sprintf("  - %s: only %d words, expand to %d-%d words", issue.Path, issue.Words, issue.Min, issue.Max))
		}
		if extra := len(shortOpts) - maxShortOptions; extra > 0 {
			lines = append(lines, fmt.Sprintf("  ... and %d more", extra))
		}
	}
	if len(others) > 0 {
		lines = append(lines, "Other word count violations:")
		for _, issue := range others {
			lines = append(lines, "  - "+issue.String())
		}
	}
	return strings.Join(lines, "\n")
}

func display(id string) string {
	return quiz.DisplayName(id)
}
