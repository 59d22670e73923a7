// Package progress reports how far an index build has got.
package progress

import (
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter receives the running count of indexed records. total is the
// expected record count, or 0 when unknown.
type Reporter interface {
	Update(done, total int)
	Finish()
}

// Bar draws a progress bar, or a spinner when the total is unknown.
type Bar struct {
	w     io.Writer
	desc  string
	bar   *progressbar.ProgressBar
	// estimate is the total last passed in; total is the current bar max,
	// which grows past the estimate with the stream.
	estimate int
	total    int
}

// NewBar returns a Bar writing to w.
func NewBar(w io.Writer, desc string) *Bar {
	return &Bar{w: w, desc: desc}
}

// Update moves the bar to done. The bar is created on the first call.
func (b *Bar) Update(done, total int) {
	if b.bar == nil || total != b.estimate {
		b.start(total)
	}
	if b.total > 0 && done > b.total {
		// Estimate was short; grow with the stream.
		b.total = done
		b.bar.ChangeMax(done)
	}
	_ = b.bar.Set(done)
}

// Finish completes the bar.
func (b *Bar) Finish() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}

func (b *Bar) start(total int) {
	max := total
	if max <= 0 {
		max = -1
	}
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(b.desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	}
	if max < 0 {
		opts = append(opts, progressbar.OptionSpinnerType(9))
	}
	b.bar = progressbar.NewOptions(max, opts...)
	b.estimate = total
	b.total = total
}

// Log reports progress as structured log lines, at most one per every
// records.
type Log struct {
	logger *slog.Logger
	every  int
	last   int
	done   int
}

// NewLog returns a Log reporter. every <= 0 logs each update.
func NewLog(logger *slog.Logger, every int) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, every: every}
}

func (l *Log) Update(done, total int) {
	l.done = done
	if l.every > 0 && done-l.last < l.every {
		return
	}
	l.last = done
	l.logger.Info("indexing progress", "indexed", done, "expected_total", total)
}

func (l *Log) Finish() {
	l.logger.Info("indexing progress done", "indexed", l.done)
}

// Enabled reports whether stderr is a terminal.
func Enabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Default returns a terminal bar on stderr when stderr is a terminal, or a
// Log reporter otherwise.
func Default(logger *slog.Logger) Reporter {
	if Enabled() {
		return NewBar(os.Stderr, "indexing")
	}
	return NewLog(logger, 1000)
}
