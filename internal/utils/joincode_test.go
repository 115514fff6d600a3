package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJoinCodeShape(t *testing.T) {
	for range 50 {
		code, err := GenerateJoinCode()
		require.NoError(t, err)

		assert.Len(t, code, JoinCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(joinCodeAlphabet, r),
				"unexpected character %q in join code %q", r, code)
		}
	}
}

func TestJoinCodeAlphabetExcludesAmbiguous(t *testing.T) {
	// 0/O, 1/I/L are easy to misread over a shared screen
	for _, r := range "0O1IL" {
		assert.False(t, strings.ContainsRune(joinCodeAlphabet, r))
	}
}
