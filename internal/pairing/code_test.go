package pairing

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCode(t *testing.T) {
	t.Run("generates code in correct format XXXX-XXXX", func(t *testing.T) {
		code := GenerateCode()

		pattern := regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}$`)
		assert.True(t, pattern.MatchString(code), "code should match XXXX-XXXX format, got: %s", code)
	})

	t.Run("uses only allowed characters", func(t *testing.T) {
		code := GenerateCode()

		for _, c := range code[:4] + code[5:] {
			assert.Contains(t, codeChars, string(c))
		}
	})

	t.Run("generates unique codes", func(t *testing.T) {
		codes := make(map[string]bool)
		for i := 0; i < 100; i++ {
			code := GenerateCode()
			assert.False(t, codes[code], "duplicate code generated: %s", code)
			codes[code] = true
		}
	})

	t.Run("reaches every symbol", func(t *testing.T) {
		seen := make(map[rune]bool)
		for i := 0; i < 500; i++ {
			code := GenerateCode()
			for _, c := range code[:4] + code[5:] {
				seen[c] = true
			}
		}
		assert.Len(t, seen, len(codeChars))
	})
}

func TestCodeChars(t *testing.T) {
	t.Run("contains no ambiguous characters", func(t *testing.T) {
		for _, c := range []string{"O", "I", "0", "1"} {
			assert.NotContains(t, codeChars, c)
		}
	})

	t.Run("contains expected character count", func(t *testing.T) {
		// 24 letters + 8 digits
		assert.Len(t, codeChars, 32)
	})
}
