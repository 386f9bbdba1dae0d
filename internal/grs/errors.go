package grs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIO classifies failures opening, reading or decompressing the input.
	ErrIO = errors.New("grs: input unreadable")
	// ErrSchema classifies inputs missing a required column.
	ErrSchema = errors.New("grs: schema mismatch")
	// ErrParse classifies malformed cells and rows.
	ErrParse = errors.New("grs: parse failure")
	// ErrConsumed is yielded when a record sequence is ranged over a second time.
	ErrConsumed = errors.New("grs: record sequence already consumed")
)

// IOError reports an input that could not be opened, read or decompressed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("grs: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

// SchemaError reports required columns absent from the header row.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("grs: missing required columns: %s", strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ParseError reports a cell or row that could not be decoded. Line is 1-based
// and counts the header row.
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("grs: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("grs: line %d: column %s: cannot parse %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }
