package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogMessageRegexp(t *testing.T) {
	re := logMessageRegexp("i={i}")
	assert.True(t, re.MatchString("i=3"))
	assert.True(t, re.MatchString("i=some longer value"))
	assert.False(t, re.MatchString("j=3"))
	assert.False(t, re.MatchString("prefix i=3"), "matchers are anchored to the whole line")

	re = logMessageRegexp("order {id} total {total}")
	assert.True(t, re.MatchString("order 42 total 19.90"))
	assert.False(t, re.MatchString("order 42"))

	re = logMessageRegexp("plain text, no holes")
	assert.True(t, re.MatchString("plain text, no holes"))
	assert.False(t, re.MatchString("plain text, no holes!"))

	// Literal regexp metacharacters in the template stay literal
	re = logMessageRegexp("value (cached): {v}")
	assert.True(t, re.MatchString("value (cached): 7"))
	assert.False(t, re.MatchString("value cached: 7"))
}

func TestSplitOutputLines(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, splitOutputLines("one\ntwo\n"))
	assert.Equal(t, []string{"one", "two"}, splitOutputLines("one\r\ntwo\r\n"),
		"CRLF output from Windows debuggees is normalized")
	assert.Nil(t, splitOutputLines("\n\n"))
	assert.Nil(t, splitOutputLines(""))
	assert.Equal(t, []string{"partial"}, splitOutputLines("partial"))
}
