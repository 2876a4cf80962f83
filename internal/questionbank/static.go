package questionbank

import (
	"context"

	"github.com/examind/test-engine/internal/models"
)

// StaticProvider serves questions and tests from memory. Used in tests and
// for seeded demo deployments.
type StaticProvider struct {
	questions map[int]*models.QuestionRecord
	tests     map[string]*models.TestConfig
}

func NewStaticProvider(questions []*models.QuestionRecord, tests []*models.TestConfig) *StaticProvider {
	p := &StaticProvider{
		questions: make(map[int]*models.QuestionRecord, len(questions)),
		tests:     make(map[string]*models.TestConfig, len(tests)),
	}
	for _, q := range questions {
		p.questions[q.ID] = q
	}
	for _, t := range tests {
		p.tests[t.ID] = t
	}
	return p
}

func (p *StaticProvider) FindByID(_ context.Context, id int) (*models.QuestionRecord, error) {
	q, ok := p.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return q, nil
}

func (p *StaticProvider) FindTestByID(_ context.Context, id string) (*models.TestConfig, error) {
	t, ok := p.tests[id]
	if !ok {
		return nil, ErrTestNotFound
	}
	return t, nil
}
