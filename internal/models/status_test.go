package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	one := 1

	tests := []struct {
		name   string
		answer *UserAnswer
		want   AnswerStatus
	}{
		{"nil record", nil, StatusNotVisited},
		{"never visited", &UserAnswer{}, StatusNotVisited},
		{"selection without visit stays not-visited", &UserAnswer{SelectedOption: &one}, StatusNotVisited},
		{"visited only", &UserAnswer{Visited: true}, StatusNotAnswered},
		{"visited with selection", &UserAnswer{Visited: true, SelectedOption: &one}, StatusAnswered},
		{"marked without selection", &UserAnswer{Visited: true, MarkedForReview: true}, StatusMarkedForReview},
		{"marked with selection", &UserAnswer{Visited: true, MarkedForReview: true, SelectedOption: &one}, StatusAnsweredAndMarked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.answer))
		})
	}
}

func TestUserAnswerAttempted(t *testing.T) {
	zero := 0
	assert.False(t, (*UserAnswer)(nil).Attempted())
	assert.False(t, (&UserAnswer{Visited: true}).Attempted())
	// Option index 0 is a real answer.
	assert.True(t, (&UserAnswer{SelectedOption: &zero}).Attempted())
}

func TestSessionClone(t *testing.T) {
	two := 2
	end := int64(1700000000)
	sess := &TestSession{
		ID:                "s1",
		RemainingTime:     120,
		CurrentQuestionID: 10,
		Answers: map[int]*UserAnswer{
			10: {QuestionID: 10, SelectedOption: &two, Visited: true},
		},
		EndTime: &end,
	}

	clone := sess.Clone()
	assert.Equal(t, sess, clone)

	*clone.Answers[10].SelectedOption = 3
	clone.Answers[10].Visited = false
	*clone.EndTime = 0
	assert.Equal(t, 2, *sess.Answers[10].SelectedOption)
	assert.True(t, sess.Answers[10].Visited)
	assert.Equal(t, end, *sess.EndTime)
}
