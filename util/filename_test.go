package util

import (
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	assert := assert_.New(t)

	assert.Equal("plain title", SanitizeFilename("plain title"))
	assert.Equal("【中文】标题", SanitizeFilename("【中文】标题"))
	assert.Equal("a_b_c_d_e_f_g_h_i", SanitizeFilename(`a<b>c:d"e/f\g|h?i`))
	assert.Equal("trimmed", SanitizeFilename("  trimmed .. "))
	assert.Equal("video", SanitizeFilename(""))
	assert.Equal("video", SanitizeFilename(" ... "))

	long := SanitizeFilename(strings.Repeat("标", 500))
	assert.Equal(200, len([]rune(long)))
}
