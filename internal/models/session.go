package models

// UserAnswer is the per-question answer record. One exists for every question
// id in the test from the moment the session is created; fields are never
// partially initialized.
type UserAnswer struct {
	QuestionID      int  `json:"question_id"`
	SelectedOption  *int `json:"selected_option"` // nil means no option selected
	MarkedForReview bool `json:"marked_for_review"`
	TimeSpent       int  `json:"time_spent"` // seconds, accrues only while current
	Visited         bool `json:"visited"`
}

// Attempted reports whether a non-empty option is selected.
func (a *UserAnswer) Attempted() bool {
	return a != nil && a.SelectedOption != nil
}

func (a *UserAnswer) clone() *UserAnswer {
	if a == nil {
		return nil
	}
	c := *a
	if a.SelectedOption != nil {
		v := *a.SelectedOption
		c.SelectedOption = &v
	}
	return &c
}

// TestSession is one candidate's attempt at one test. It is mutated in place
// while active and becomes immutable once Completed flips to true.
type TestSession struct {
	ID                string              `json:"id"`
	UserID            string              `json:"user_id"`
	TestID            string              `json:"test_id"`
	StartTime         int64               `json:"start_time"` // unix seconds
	RemainingTime     int                 `json:"remaining_time"`
	CurrentQuestionID int                 `json:"current_question_id"`
	Answers           map[int]*UserAnswer `json:"answers"`
	TabSwitchCount    int                 `json:"tab_switch_count"`
	UpdatedAt         int64               `json:"updated_at"` // unix seconds, stamped on every persisted write
	Completed         bool                `json:"completed"`
	EndTime           *int64              `json:"end_time,omitempty"` // unix seconds, set on completion
}

// Answer returns the record for a question id, or nil if the id is not part
// of this session. The key set is fixed at creation, so nil means a foreign
// question id, not an unanswered one.
func (s *TestSession) Answer(questionID int) *UserAnswer {
	return s.Answers[questionID]
}

// Clone returns a deep copy, safe to hand out while the original keeps
// mutating under the engine's lock.
func (s *TestSession) Clone() *TestSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		v := *s.EndTime
		c.EndTime = &v
	}
	c.Answers = make(map[int]*UserAnswer, len(s.Answers))
	for id, a := range s.Answers {
		c.Answers[id] = a.clone()
	}
	return &c
}
