package model

// QuizPool is the payload the model is asked to produce for one chunk
type QuizPool struct {
	Questions []Question `json:"quiz_pool" validate:"dive"`
}

// Question is a single multiple-choice question
type Question struct {
	ID          int      `json:"id" validate:"required,min=1"`
	Question    string   `json:"question" validate:"required"`
	Explanation string   `json:"explanation" validate:"required"`
	Options     []Option `json:"options" validate:"dive"`
}

// Option is one answer choice
type Option struct {
	Key       string `json:"key" validate:"required,oneof=A B C D E"`
	Text      string `json:"text" validate:"required"`
	IsCorrect *bool  `json:"is_correct" validate:"required"`
	Rationale string `json:"rationale" validate:"required"`
}

// Correct reports whether the option is marked as the right answer
func (o Option) Correct() bool {
	return o.IsCorrect != nil && *o.IsCorrect
}

// DifficultyMetadata holds per-level quiz rules
type DifficultyMetadata struct {
	TimeLimitMinutes int     `json:"time_limit_minutes" yaml:"time_limit_minutes"`
	PassingScore     float64 `json:"passing_score" yaml:"passing_score"`
}

// ProductionQuiz is the export format consumed by the quiz platform
type ProductionQuiz struct {
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	Specialization   string               `json:"specialization"`
	DifficultyLevel  int                  `json:"difficulty_level"`
	TimeLimitMinutes int                  `json:"time_limit_minutes"`
	PassingScore     float64              `json:"passing_score"`
	Questions        []ProductionQuestion `json:"questions"`
}

type ProductionQuestion struct {
	QuestionText string             `json:"question_text"`
	QuestionType string             `json:"question_type"`
	Points       int                `json:"points"`
	Explanation  string             `json:"explanation"`
	Options      []ProductionOption `json:"options"`
}

type ProductionOption struct {
	Key       string `json:"key"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Rationale string `json:"rationale"`
}
