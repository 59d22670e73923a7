package progress

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarKnownTotal(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "indexing")
	b.Update(256, 600)
	b.Update(512, 600)
	b.Update(600, 600)
	b.Finish()

	assert.NotNil(t, b.bar)
	assert.Equal(t, 600, b.total)
}

func TestBarGrowsPastEstimate(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "indexing")
	b.Update(100, 50)
	assert.Equal(t, 100, b.total)
	first := b.bar

	// The same estimate keeps arriving once it has been exceeded.
	b.Update(150, 50)
	b.Update(200, 50)
	assert.Same(t, first, b.bar)
	assert.Equal(t, 200, b.total)
	assert.Equal(t, 50, b.estimate)
	b.Finish()
}

func TestBarUnknownTotalSpins(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "indexing")
	b.Update(10, 0)
	b.Update(20, 0)
	b.Finish()
	assert.Zero(t, b.total)
}

func TestBarFinishWithoutUpdate(t *testing.T) {
	b := NewBar(&bytes.Buffer{}, "indexing")
	assert.NotPanics(t, b.Finish)
}

func TestLogThrottles(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	l := NewLog(logger, 100)

	l.Update(50, 0)
	l.Update(100, 0)
	l.Update(150, 0)
	l.Update(200, 0)
	l.Finish()

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=\"indexing progress\""))
	assert.Contains(t, out, "indexed=200")
	assert.Contains(t, out, "indexing progress done")
}
