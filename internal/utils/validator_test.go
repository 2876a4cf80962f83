package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Count  *int   `json:"count" validate:"required,min=0"`
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	zero := 0
	assert.NoError(t, v.Validate(&sampleRequest{UserID: "u1", Count: &zero}))
}

func TestValidator_ReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&sampleRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	var ve ValidationErrors
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve, 2)
	fields := []string{ve[0].Field, ve[1].Field}
	assert.Contains(t, fields, "user_id")
	assert.Contains(t, fields, "count")
}

func TestValidator_Min(t *testing.T) {
	v := NewValidator()
	neg := -1
	err := v.Validate(&sampleRequest{UserID: "u1", Count: &neg})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(nil))
	assert.False(t, IsValidationError(errors.New("boom")))
}
