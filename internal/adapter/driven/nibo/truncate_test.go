package nibo

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short string untouched", "Sem sessão", 200, "Sem sessão"},
		{"ascii cut", "abcdef", 3, "abc..."},
		{"cut inside two-byte rune backs off", "Sem sessão", 9, "Sem sess..."},
		{"cut after two-byte rune", "Sem sessão", 10, "Sem sessã..."},
		{"cut inside three-byte rune", "a€b", 2, "a..."},
		{"cut inside first rune", "ção", 1, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestTruncate_LongVendorMessageStaysValid(t *testing.T) {
	msg := strings.Repeat("ã", 150)

	got := truncate(msg, 200)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("ã", 100)+"...", got)
}
