package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// archiveEntry matches one element of a Twitter/X archive export.
type archiveEntry struct {
	Tweet *struct {
		FullText  *string `json:"full_text"`
		CreatedAt *string `json:"created_at"`
	} `json:"tweet"`
}

// jsonDecoder walks a top-level JSON array one element at a time, so only a
// single element is held in memory.
type jsonDecoder struct {
	name  string
	dec   *json.Decoder
	index int
	done  bool
}

// newJSONDecoder accepts both a bare array and the archive's tweets.js form
// ("window.YTD.tweets.part0 = [ ... ]"), whose assignment prefix is skipped.
func newJSONDecoder(r io.Reader, name string) (*jsonDecoder, error) {
	br := bufio.NewReader(r)
	if err := skipToArray(br); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, name, err)
	}

	dec := json.NewDecoder(br)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, name, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: %s: expected a JSON array", ErrOpen, name)
	}
	return &jsonDecoder{name: name, dec: dec}, nil
}

// skipToArray discards bytes up to (not including) the first '['.
func skipToArray(br *bufio.Reader) error {
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("no JSON array found")
			}
			return err
		}
		if b[0] == '[' {
			return nil
		}
		if _, err := br.ReadByte(); err != nil {
			return err
		}
	}
}

func (d *jsonDecoder) next() (Record, error) {
	if d.done {
		return Record{}, io.EOF
	}
	if !d.dec.More() {
		d.done = true
		if _, err := d.dec.Token(); err != nil {
			return Record{}, fmt.Errorf("%s: reading end of array: %w", d.name, err)
		}
		return Record{}, io.EOF
	}

	idx := d.index
	d.index++

	var raw json.RawMessage
	if err := d.dec.Decode(&raw); err != nil {
		// The stream position is unknown after a syntax error.
		d.done = true
		return Record{}, fmt.Errorf("%s: record %d: %w", d.name, idx, err)
	}

	var entry archiveEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Record{}, &MalformedRecordError{File: d.name, Index: idx, Reason: "not an object"}
	}
	if entry.Tweet == nil {
		return Record{}, &MalformedRecordError{File: d.name, Index: idx, Reason: "missing tweet"}
	}
	if entry.Tweet.FullText == nil {
		return Record{}, &MalformedRecordError{File: d.name, Index: idx, Reason: "missing tweet.full_text"}
	}
	if entry.Tweet.CreatedAt == nil {
		return Record{}, &MalformedRecordError{File: d.name, Index: idx, Reason: "missing tweet.created_at"}
	}
	return Record{Text: *entry.Tweet.FullText, Date: *entry.Tweet.CreatedAt}, nil
}
