package pattern_test

import (
	"testing"

	"github.com/aacfactory/sharedcache/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPattern(t *testing.T) {
	assert.True(t, pattern.IsPattern("u:*"))
	assert.True(t, pattern.IsPattern("u:?"))
	assert.True(t, pattern.IsPattern("/^u:.*$/"))
	assert.False(t, pattern.IsPattern("plain-key"))
}

func TestGlobAnchoredFullString(t *testing.T) {
	re, err := pattern.Compile("prefix:*")
	require.NoError(t, err)
	assert.True(t, re.MatchString("prefix:1"))
	assert.True(t, re.MatchString("prefix:"))
	assert.False(t, re.MatchString("xprefix:1"))
	assert.False(t, re.MatchString("prefix:1x\nnope"))
}

func TestGlobQuestionMarkMatchesOneChar(t *testing.T) {
	re, err := pattern.Compile("u:?")
	require.NoError(t, err)
	assert.True(t, re.MatchString("u:1"))
	assert.False(t, re.MatchString("u:12"))
	assert.False(t, re.MatchString("u:"))
}

func TestGlobEscapesRegexMetacharacters(t *testing.T) {
	re, err := pattern.Compile("a.b(c)")
	require.NoError(t, err)
	assert.True(t, re.MatchString("a.b(c)"))
	assert.False(t, re.MatchString("aXb(c)"))
}

func TestRegexLiteralUsedVerbatim(t *testing.T) {
	re, err := pattern.Compile("/^u:\\d+$/")
	require.NoError(t, err)
	assert.True(t, re.MatchString("u:123"))
	assert.False(t, re.MatchString("u:abc"))
}

func TestInvalidRegexLiteralErrors(t *testing.T) {
	_, err := pattern.Compile("/(unclosed/")
	assert.Error(t, err)
}
