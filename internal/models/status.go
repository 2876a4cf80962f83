package models

// AnswerStatus is the palette category of a question, derived purely from
// its UserAnswer.
type AnswerStatus string

const (
	StatusNotVisited        AnswerStatus = "not-visited"
	StatusNotAnswered       AnswerStatus = "not-answered"
	StatusAnswered          AnswerStatus = "answered"
	StatusMarkedForReview   AnswerStatus = "marked-for-review"
	StatusAnsweredAndMarked AnswerStatus = "answered-and-marked"
)

// StatusOf derives the palette status of an answer record. A nil or
// never-visited record is not-visited; a marked record splits on whether an
// option is selected. answered-and-marked still counts as attempted for
// scoring.
func StatusOf(a *UserAnswer) AnswerStatus {
	if a == nil || !a.Visited {
		return StatusNotVisited
	}
	if a.MarkedForReview {
		if a.Attempted() {
			return StatusAnsweredAndMarked
		}
		return StatusMarkedForReview
	}
	if a.Attempted() {
		return StatusAnswered
	}
	return StatusNotAnswered
}
