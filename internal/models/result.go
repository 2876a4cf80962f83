package models

// QuestionStat is the per-question line of a TestResult.
type QuestionStat struct {
	QuestionID int  `json:"question_id"`
	TimeSpent  int  `json:"time_spent"`
	IsCorrect  bool `json:"is_correct"`
	Attempted  bool `json:"attempted"`
}

// TestResult is the write-once outcome of a completed session. It always
// holds one QuestionStat per question id, in the test's navigation order,
// and satisfies CorrectAnswers + IncorrectAnswers + Unattempted ==
// TotalQuestions.
type TestResult struct {
	TestID           string         `json:"test_id"`
	UserID           string         `json:"user_id"`
	Score            int            `json:"score"`
	TotalQuestions   int            `json:"total_questions"`
	CorrectAnswers   int            `json:"correct_answers"`
	IncorrectAnswers int            `json:"incorrect_answers"`
	Unattempted      int            `json:"unattempted"`
	MarkedForReview  int            `json:"marked_for_review"`
	TimeTaken        int            `json:"time_taken"` // seconds
	SubmittedAt      int64          `json:"submitted_at"`
	QuestionStats    []QuestionStat `json:"question_stats"`
}
