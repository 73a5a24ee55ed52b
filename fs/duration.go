package fs

import (
	"fmt"
	"strconv"
	"time"
)

// Duration is a time.Duration with some more parsing options
type Duration time.Duration

// String turns Duration into a string
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Set a Duration from a string.  Accepts time.ParseDuration syntax or
// a plain number of milliseconds.
func (d *Duration) Set(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Type of the value
func (d Duration) Type() string {
	return "Duration"
}

// Scan implements the fmt.Scanner interface
func (d *Duration) Scan(s fmt.ScanState, ch rune) error {
	token, err := s.Token(true, nil)
	if err != nil {
		return err
	}
	return d.Set(string(token))
}

// UnmarshalJSON makes sure the value can be parsed as a string in JSON
func (d *Duration) UnmarshalJSON(in []byte) error {
	unquoted, err := strconv.Unquote(string(in))
	if err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.Set(unquoted)
}
