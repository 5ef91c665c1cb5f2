package orchestrator

import (
	"encoding/json"
	"sync"

	"github.com/makeasinger/quizgen/internal/catalog"
	"github.com/makeasinger/quizgen/internal/model"
	"github.com/makeasinger/quizgen/internal/quiz"
)

type group struct {
	career    string
	level     int
	soft      bool
	questions []model.Question
}

// pool accumulates questions per career/level in unit order
type pool struct {
	mu     sync.Mutex
	order  []string
	groups map[string]*group
}

func newPool() *pool {
	return &pool{groups: make(map[string]*group)}
}

func (p *pool) add(unit model.WorkUnit, questions []model.Question) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := unit.GroupKey()
	g, ok := p.groups[key]
	if !ok {
		g = &group{career: unit.Career, level: unit.Level, soft: unit.IsSoftSkills()}
		p.groups[key] = g
		p.order = append(p.order, key)
	}
	g.questions = append(g.questions, questions...)
}

func (p *pool) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func (p *pool) questions(key string) []model.Question {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[key]
	if !ok {
		return nil
	}
	return append([]model.Question(nil), g.questions...)
}

func (p *pool) replace(key string, questions []model.Question) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.groups[key]; ok {
		g.questions = questions
	}
}

// snapshot encodes group key -> questions
func (p *pool) snapshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string][]model.Question, len(p.groups))
	for key, g := range p.groups {
		out[key] = g.questions
	}
	return json.Marshal(out)
}

// production renders every group in export form, duplicates removed
func (p *pool) production(c *catalog.Catalog) []model.ProductionQuiz {
	p.mu.Lock()
	defer p.mu.Unlock()

	quizzes := make([]model.ProductionQuiz, 0, len(p.order))
	for _, key := range p.order {
		g := p.groups[key]
		questions := quiz.Dedupe(g.questions)
		if len(questions) == 0 {
			continue
		}
		meta := c.DifficultyFor(g.level)
		if g.soft {
			quizzes = append(quizzes, quiz.SoftSkillsProduction(questions, meta))
			continue
		}
		quizzes = append(quizzes, quiz.ToProduction(g.career, g.level, questions, meta))
	}
	return quizzes
}
