// Package source streams tweet records out of bulk archive files.
//
// A Source is restartable only by reopening it: every call to Open starts a
// fresh pass over the backing files, and an Iterator is consumed exactly once.
package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Record is one tweet as produced by a Source.
type Record struct {
	Text string
	Date string
}

// ErrOpen reports that the backing file is missing or unreadable.
var ErrOpen = errors.New("source: cannot open")

// MalformedRecordError describes a single entry that could not become a Record.
// It is recoverable: iterators log it and move on.
type MalformedRecordError struct {
	File   string
	Index  int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: record %d: %s", e.File, e.Index, e.Reason)
}

// Source opens a new pass over a record stream.
type Source interface {
	Open() (Iterator, error)
}

// Iterator is a finite, forward-only sequence of records.
//
//	it, err := src.Open()
//	...
//	defer it.Close()
//	for it.Next() {
//		rec := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	Next() bool
	Record() Record
	// Err returns the first fatal error. Malformed records are not fatal.
	Err() error
	// Skipped is the number of malformed records dropped so far.
	Skipped() int
	Close() error
}

// Format selects how a file is decoded.
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FileSource reads one file or every file matching a doublestar glob, in
// lexical order, as a single stream.
type FileSource struct {
	Pattern string
	Format  Format
	Logger  *slog.Logger
}

// NewFileSource returns a Source over pattern.
func NewFileSource(pattern string, format Format, logger *slog.Logger) *FileSource {
	if format == "" {
		format = FormatAuto
	}
	return &FileSource{Pattern: pattern, Format: format, Logger: logger}
}

// Open resolves the pattern and opens the first file. It fails with ErrOpen
// when nothing matches or the first file cannot be read.
func (s *FileSource) Open() (Iterator, error) {
	files, err := s.resolve()
	if err != nil {
		return nil, err
	}
	it := &multiIterator{files: files, format: s.Format, logger: s.logger()}
	if err := it.advanceFile(); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *FileSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *FileSource) resolve() ([]string, error) {
	if strings.TrimSpace(s.Pattern) == "" {
		return nil, fmt.Errorf("%w: empty source path", ErrOpen)
	}
	if !hasMeta(s.Pattern) {
		info, err := os.Stat(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpen, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrOpen, s.Pattern)
		}
		return []string{s.Pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(s.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrOpen, s.Pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no files match %q", ErrOpen, s.Pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

func formatFor(path string, format Format) Format {
	if format != FormatAuto {
		return format
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatJSON
}

// recordDecoder yields records from a single open file.
type recordDecoder interface {
	// next returns io.EOF at the end of the file and a *MalformedRecordError
	// for a skippable entry.
	next() (Record, error)
}

type multiIterator struct {
	files  []string
	pos    int
	format Format
	logger *slog.Logger

	file    *os.File
	name    string
	dec     recordDecoder
	current Record
	err     error
	skipped int
	closed  bool
}

func (it *multiIterator) advanceFile() error {
	if it.file != nil {
		_ = it.file.Close()
		it.file = nil
		it.dec = nil
	}
	if it.pos >= len(it.files) {
		return io.EOF
	}
	name := it.files[it.pos]
	it.pos++

	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}
	var dec recordDecoder
	switch formatFor(name, it.format) {
	case FormatCSV:
		dec, err = newCSVDecoder(f, name)
	default:
		dec, err = newJSONDecoder(f, name)
	}
	if err != nil {
		_ = f.Close()
		return err
	}
	it.file = f
	it.name = name
	it.dec = dec
	return nil
}

func (it *multiIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	for it.dec != nil {
		rec, err := it.dec.next()
		if err == nil {
			it.current = rec
			return true
		}
		var malformed *MalformedRecordError
		switch {
		case errors.As(err, &malformed):
			it.skipped++
			it.logger.Warn("skipping malformed record",
				"file", malformed.File, "index", malformed.Index, "reason", malformed.Reason)
		case errors.Is(err, io.EOF):
			if ferr := it.advanceFile(); ferr != nil {
				if !errors.Is(ferr, io.EOF) {
					it.err = ferr
				}
				return false
			}
		default:
			it.err = err
			return false
		}
	}
	return false
}

func (it *multiIterator) Record() Record { return it.current }

func (it *multiIterator) Err() error { return it.err }

func (it *multiIterator) Skipped() int { return it.skipped }

func (it *multiIterator) Close() error {
	it.closed = true
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	it.dec = nil
	return err
}

// SliceSource serves records from memory. Tests and callers that already
// hold records use it.
type SliceSource []Record

func (s SliceSource) Open() (Iterator, error) {
	return &sliceIterator{records: s, pos: -1}, nil
}

type sliceIterator struct {
	records []Record
	pos     int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.records) {
		it.pos = len(it.records)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Record() Record { return it.records[it.pos] }
func (it *sliceIterator) Err() error     { return nil }
func (it *sliceIterator) Skipped() int   { return 0 }
func (it *sliceIterator) Close() error   { return nil }
