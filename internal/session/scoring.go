package session

import (
	"context"
	"time"

	"github.com/examind/test-engine/internal/models"
	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/utils"
)

// Marking scheme: +4 for a correct answer, -1 for an incorrect one,
// 0 for an unattempted question.
const (
	marksCorrect   = 4
	marksIncorrect = -1
)

// Score maps a completed answer set to a TestResult. It is deterministic
// and side-effect-free apart from bank lookups and logging; persistence is
// the caller's job.
//
// Question ids missing from the bank cannot be graded: they count as
// unattempted (no score contribution) and still emit a stats row, so
// correct + incorrect + unattempted always equals the question count.
func Score(ctx context.Context, test *models.TestConfig, bank questionbank.Provider, sess *models.TestSession, submittedAt time.Time, logger utils.Logger) *models.TestResult {
	result := &models.TestResult{
		TestID:         test.ID,
		UserID:         sess.UserID,
		TotalQuestions: len(test.QuestionIDs),
		SubmittedAt:    submittedAt.Unix(),
		QuestionStats:  make([]models.QuestionStat, 0, len(test.QuestionIDs)),
	}

	timeTaken := test.Duration - sess.RemainingTime
	if timeTaken < 0 {
		timeTaken = 0
	}
	result.TimeTaken = timeTaken

	// Iterate in navigation order so QuestionStats is deterministic.
	for _, qid := range test.QuestionIDs {
		answer := sess.Answer(qid)
		stat := models.QuestionStat{QuestionID: qid}
		if answer != nil {
			stat.TimeSpent = answer.TimeSpent
			if answer.MarkedForReview {
				result.MarkedForReview++
			}
		}

		question, err := bank.FindByID(ctx, qid)
		if err != nil {
			logger.Warn("Question missing from bank at scoring time, counting as unattempted",
				"test_id", test.ID,
				"question_id", qid,
				"error", err)
			result.Unattempted++
			result.QuestionStats = append(result.QuestionStats, stat)
			continue
		}

		if !answer.Attempted() {
			result.Unattempted++
			result.QuestionStats = append(result.QuestionStats, stat)
			continue
		}

		stat.Attempted = true
		if *answer.SelectedOption == question.CorrectAnswer {
			stat.IsCorrect = true
			result.CorrectAnswers++
			result.Score += marksCorrect
		} else {
			result.IncorrectAnswers++
			result.Score += marksIncorrect
		}
		result.QuestionStats = append(result.QuestionStats, stat)
	}

	return result
}
