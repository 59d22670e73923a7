package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "store", sanitizeName(""))
	assert.Equal(t, "store", sanitizeName("."))
	assert.Equal(t, "my_data.v2", sanitizeName("my data.v2"))
	assert.Equal(t, "tweets-2024", sanitizeName("tweets-2024"))
}

func TestLogFileName(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	name := LogFileName("index", "/home/me/.tweetsearch/data", now)
	assert.True(t, strings.HasPrefix(name, "tweetsearch-index-data-20240301-093000-"), name)
	assert.True(t, strings.HasSuffix(name, ".log"))

	// Different stores never share a file name.
	assert.NotEqual(t, name, LogFileName("index", "/srv/other/data", now))
}
