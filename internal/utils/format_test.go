package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{60, "00:01:00"},
		{300, "00:05:00"},
		{3599, "00:59:59"},
		{3600, "01:00:00"},
		{10800, "03:00:00"},
		{3661, "10:11:01"},
		{-5, "00:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.seconds))
	}
}
