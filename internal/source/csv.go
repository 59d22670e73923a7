package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// csvDecoder reads a header row with "text" and "date" columns, then one
// record per row.
type csvDecoder struct {
	name    string
	r       *csv.Reader
	textCol int
	dateCol int
	index   int
}

func newCSVDecoder(r io.Reader, name string) (*csvDecoder, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading header: %v", ErrOpen, name, err)
	}
	d := &csvDecoder{name: name, r: cr, textCol: -1, dateCol: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "text":
			d.textCol = i
		case "date":
			d.dateCol = i
		}
	}
	if d.textCol < 0 || d.dateCol < 0 {
		return nil, fmt.Errorf("%w: %s: header must contain text and date columns", ErrOpen, name)
	}
	return d, nil
}

func (d *csvDecoder) next() (Record, error) {
	row, err := d.r.Read()
	idx := d.index
	d.index++
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return Record{}, &MalformedRecordError{File: d.name, Index: idx, Reason: parseErr.Err.Error()}
		}
		return Record{}, fmt.Errorf("%s: row %d: %w", d.name, idx, err)
	}
	if d.textCol >= len(row) {
		return Record{}, &MalformedRecordError{File: d.name, Index: idx, Reason: "missing text"}
	}
	if d.dateCol >= len(row) {
		return Record{}, &MalformedRecordError{File: d.name, Index: idx, Reason: "missing date"}
	}
	return Record{Text: row[d.textCol], Date: row[d.dateCol]}, nil
}
