package session

import (
	"errors"

	"github.com/examind/test-engine/internal/utils"
)

// ===== SESSION ENGINE ERRORS =====

var (
	ErrSessionNotOpen     = errors.New("session not open")
	ErrSessionCompleted   = errors.New("session already completed")
	ErrInvalidTestConfig  = errors.New("invalid test configuration")
	ErrOptionOutOfRange   = errors.New("selected option out of range")
	ErrQuestionNotInTest  = errors.New("question does not belong to this test")
	ErrSubjectNotInTest   = errors.New("subject has no questions in this test")
	ErrResultNotFound     = errors.New("result not found")
	ErrResultNotAvailable = errors.New("result not available until submission")
)

// IsNotFound reports whether err should surface as a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotOpen) ||
		errors.Is(err, ErrResultNotFound)
}

// IsValidation reports whether err is caller input that was rejected without
// mutating state.
func IsValidation(err error) bool {
	return errors.Is(err, ErrOptionOutOfRange) ||
		errors.Is(err, ErrQuestionNotInTest) ||
		errors.Is(err, ErrSubjectNotInTest) ||
		errors.Is(err, ErrInvalidTestConfig) ||
		utils.IsValidationError(err)
}

// IsConflict reports whether err is an operation against a session in the
// wrong state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSessionCompleted) ||
		errors.Is(err, ErrResultNotAvailable)
}
