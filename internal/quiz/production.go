package quiz

import (
	"fmt"
	"strings"

	"github.com/makeasinger/quizgen/internal/model"
)

const (
	questionTypeMultipleChoice = "multiple_choice"
	pointsPerQuestion          = 1
)

// DisplayName turns a catalog id like "investment_banker" into "Investment Banker"
func DisplayName(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		w = strings.ToLower(w)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ToProduction builds the export shape for one career and level
func ToProduction(career string, level int, questions []model.Question, meta model.DifficultyMetadata) model.ProductionQuiz {
	display := DisplayName(career)
	out := model.ProductionQuiz{
		Title:            fmt.Sprintf("%s Interview - Level %d", display, level),
		Description:      fmt.Sprintf("Level %d assessment questions for %s role", level, display),
		Specialization:   career,
		DifficultyLevel:  level,
		TimeLimitMinutes: meta.TimeLimitMinutes,
		PassingScore:     meta.PassingScore,
		Questions:        make([]model.ProductionQuestion, 0, len(questions)),
	}

	for _, q := range questions {
		pq := model.ProductionQuestion{
			QuestionText: q.Question,
			QuestionType: questionTypeMultipleChoice,
			Points:       pointsPerQuestion,
			Explanation:  q.Explanation,
			Options:      make([]model.ProductionOption, len(q.Options)),
		}
		for i, o := range q.Options {
			pq.Options[i] = model.ProductionOption{
				Key:       o.Key,
				Text:      o.Text,
				IsCorrect: o.Correct(),
				Rationale: o.Rationale,
			}
		}
		out.Questions = append(out.Questions, pq)
	}
	return out
}

// SoftSkillsProduction builds the export shape for the soft skills block
func SoftSkillsProduction(questions []model.Question, meta model.DifficultyMetadata) model.ProductionQuiz {
	out := ToProduction(model.SoftSkillsID, 0, questions, meta)
	out.Title = "Soft Skills Assessment"
	out.Description = "Scenario-based soft skill questions"
	return out
}
