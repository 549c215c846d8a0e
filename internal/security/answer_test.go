package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Paris", "paris"},
		{"trims", "  paris  ", "paris"},
		{"collapses inner whitespace", "new   york\tcity", "new york city"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAnswer(tt.in))
		})
	}
}

func TestHashAnswerIgnoresCaseAndSpacing(t *testing.T) {
	assert.Equal(t, HashAnswer("Our First  Date"), HashAnswer("our first date"))
	assert.NotEqual(t, HashAnswer("our first date"), HashAnswer("our second date"))
}

func TestVerifyAnswer(t *testing.T) {
	stored := HashAnswer("Central Park")

	assert.True(t, VerifyAnswer(stored, "central park"))
	assert.True(t, VerifyAnswer(stored, "  CENTRAL   PARK "))
	assert.False(t, VerifyAnswer(stored, "hyde park"))
}

func TestVerifyAnswerEmptyStoredHash(t *testing.T) {
	// A letter without a configured answer must never validate
	assert.False(t, VerifyAnswer("", ""))
	assert.False(t, VerifyAnswer("", "anything"))
}
