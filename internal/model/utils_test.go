package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 250))
	assert.Equal(t, "abc", TruncateString("abcdef", 3))
	assert.Equal(t, "", TruncateString("", 10))
}
