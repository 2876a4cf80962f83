package models

import (
	"time"

	"gorm.io/datatypes"
)

// TestConfig describes one scheduled test. It is read-only to the session
// engine; creation and assignment workflows live in the surrounding
// application.
type TestConfig struct {
	ID           string                      `json:"id" gorm:"primaryKey;size:64" validate:"required"`
	Title        string                      `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description  *string                     `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Duration     int                         `json:"duration" gorm:"not null" validate:"required,min=1"` // seconds
	TotalMarks   int                         `json:"total_marks"`
	PassingMarks int                         `json:"passing_marks"`
	Subjects     datatypes.JSONSlice[string] `json:"subjects" gorm:"type:jsonb"`
	QuestionIDs  datatypes.JSONSlice[int]    `json:"question_ids" gorm:"type:jsonb" validate:"required,min=1"`
	ScheduledFor *time.Time                  `json:"scheduled_for"`
	ScheduledBy  string                      `json:"scheduled_by" gorm:"size:64;index"`
	AssignedTo   datatypes.JSONSlice[string] `json:"assigned_to" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TestConfig) TableName() string {
	return "test_configs"
}

// HasQuestion reports whether id belongs to this test's ordered question set.
func (t *TestConfig) HasQuestion(id int) bool {
	for _, qid := range t.QuestionIDs {
		if qid == id {
			return true
		}
	}
	return false
}

// QuestionIndex returns the position of id in navigation order, or -1.
func (t *TestConfig) QuestionIndex(id int) int {
	for i, qid := range t.QuestionIDs {
		if qid == id {
			return i
		}
	}
	return -1
}

// QuestionRecord is a single multiple-choice question. CorrectAnswer is an
// index into Options.
type QuestionRecord struct {
	ID            int                         `json:"id" gorm:"primaryKey"`
	Subject       string                      `json:"subject" gorm:"size:100;index" validate:"required"`
	Text          string                      `json:"text" gorm:"type:text;not null" validate:"required"`
	Options       datatypes.JSONSlice[string] `json:"options" gorm:"type:jsonb" validate:"required,min=2"`
	CorrectAnswer int                         `json:"correct_answer" gorm:"not null" validate:"min=0"`
	Explanation   *string                     `json:"explanation" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuestionRecord) TableName() string {
	return "question_records"
}
