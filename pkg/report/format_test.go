package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "Login", expected: "Login"},
		{name: "spaces", input: "User logs in", expected: "User_logs_in"},
		{name: "separators", input: "a/b\\c", expected: "a_b_c"},
		{name: "dot dot", input: "..", expected: "__"},
		{name: "empty", input: "", expected: "_"},
		{name: "keeps punctuation", input: "v1.2-rc_3", expected: "v1.2-rc_3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeName(tt.input))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		expected string
	}{
		{name: "zero", seconds: 0, expected: "0 ms"},
		{name: "milliseconds", seconds: 0.023, expected: "23 ms"},
		{name: "sub minute", seconds: 0.13143785, expected: "0.13 sec"},
		{name: "minutes", seconds: 65, expected: "1 min 5 sec"},
		{name: "hours", seconds: 7380, expected: "2 hr 3 min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.seconds))
		})
	}
}
