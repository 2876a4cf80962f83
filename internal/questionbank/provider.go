// Package questionbank provides read-only lookup of question records and
// test configurations. The session engine only ever reads through these
// interfaces; authoring workflows live elsewhere.
package questionbank

import (
	"context"
	"errors"

	"github.com/examind/test-engine/internal/models"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrTestNotFound     = errors.New("test not found")
)

// Provider looks up question records by id. Absence is reported as
// ErrQuestionNotFound and callers must tolerate it.
type Provider interface {
	FindByID(ctx context.Context, id int) (*models.QuestionRecord, error)
}

// TestProvider looks up test configurations by id.
type TestProvider interface {
	FindTestByID(ctx context.Context, id string) (*models.TestConfig, error)
}

// IsNotFound reports whether err is one of the provider absence conditions.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuestionNotFound) || errors.Is(err, ErrTestNotFound)
}
