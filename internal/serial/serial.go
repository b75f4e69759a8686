// Package serial holds the rake serial number format and the indent scope
// used to address parent and per-indent records.
package serial

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned when a string is not a well-formed serial.
var ErrInvalid = errors.New("invalid rake serial number")

var serialPattern = regexp.MustCompile(`^((\d{4})-(\d{2}))/(\d{2})/(\d+)$`)

// Serial is a rake serial number of the form FY/MM/SEQ, for example 2025-26/02/001.
type Serial struct {
	FiscalYear string
	Month      int
	Sequence   int
}

// New builds the serial for the fiscal year and month containing t.
func New(t time.Time, seq int) Serial {
	return Serial{
		FiscalYear: FiscalYearOf(t),
		Month:      int(t.Month()),
		Sequence:   seq,
	}
}

// Parse parses a serial in FY/MM/SEQ form. The two halves of the fiscal
// year must be consecutive years. An unpadded sequence is accepted and
// String returns the canonical form.
func Parse(s string) (Serial, error) {
	m := serialPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Serial{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	start, _ := strconv.Atoi(m[2])
	end, _ := strconv.Atoi(m[3])
	if end != (start+1)%100 {
		return Serial{}, fmt.Errorf("%w: fiscal year %s does not span consecutive years", ErrInvalid, m[1])
	}
	month, err := strconv.Atoi(m[4])
	if err != nil || month < 1 || month > 12 {
		return Serial{}, fmt.Errorf("%w: month out of range in %q", ErrInvalid, s)
	}
	seq, err := strconv.Atoi(m[5])
	if err != nil || seq < 1 {
		return Serial{}, fmt.Errorf("%w: sequence out of range in %q", ErrInvalid, s)
	}
	return Serial{FiscalYear: m[1], Month: month, Sequence: seq}, nil
}

// String formats the serial with a zero-padded month and a sequence padded to three digits.
func (s Serial) String() string {
	return fmt.Sprintf("%s/%02d/%03d", s.FiscalYear, s.Month, s.Sequence)
}

// Prefix returns the FY/MM/ part shared by every serial of the same month.
func (s Serial) Prefix() string {
	return Prefix(s.FiscalYear, s.Month)
}

// Next returns the serial with the following sequence number.
func (s Serial) Next() Serial {
	s.Sequence++
	return s
}

// Prefix builds the FY/MM/ prefix used for month scans.
func Prefix(fiscalYear string, month int) string {
	return fmt.Sprintf("%s/%02d/", fiscalYear, month)
}

// FiscalYearOf returns the Indian fiscal year (April to March) containing t,
// formatted as YYYY-YY.
func FiscalYearOf(t time.Time) string {
	year := t.Year()
	if t.Month() < time.April {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// EncodePath replaces slashes so a serial can travel as a single URL path segment.
func EncodePath(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}

// DecodePath reverses EncodePath. Serials never contain underscores.
func DecodePath(p string) string {
	return strings.ReplaceAll(p, "_", "/")
}
