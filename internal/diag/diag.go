// Package diag defines the recoverable error kinds of an aggregation run and
// the collector that records them.
//
// A diagnostic never aborts a run: the offending record, entity or file is
// skipped, the diagnostic is logged and kept for the run report, and
// processing continues with the remaining data.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

var (
	// ErrMissingSource marks an expected input file that is absent for a group.
	ErrMissingSource = errors.New("missing source")
	// ErrMalformedRecord marks a record with fewer fields than its layout requires.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrNonNumericValue marks a field that should coerce to a number but does not.
	ErrNonNumericValue = errors.New("non-numeric value")
	// ErrNoValidRecords is the terminal condition of a run that found nothing to aggregate.
	ErrNoValidRecords = errors.New("no valid input records")
)

// Kind names a diagnostic category.
type Kind string

const (
	KindMissingSource   Kind = "missing_source"
	KindMalformedRecord Kind = "malformed_record"
	KindNonNumericValue Kind = "non_numeric_value"
)

func (k Kind) sentinel() error {
	switch k {
	case KindMissingSource:
		return ErrMissingSource
	case KindMalformedRecord:
		return ErrMalformedRecord
	case KindNonNumericValue:
		return ErrNonNumericValue
	}
	return nil
}

// Diagnostic records one recovered problem with its provenance.
type Diagnostic struct {
	Kind    Kind
	Group   string
	Source  string
	File    string
	Line    int // 1-indexed, 0 when the problem concerns a whole file
	Message string
}

func (d Diagnostic) Error() string {
	loc := d.File
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", d.File, d.Line)
	}
	if loc == "" {
		loc = d.Group
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, loc, d.Message)
}

// Unwrap lets callers match a diagnostic with errors.Is against the sentinels.
func (d Diagnostic) Unwrap() error {
	return d.Kind.sentinel()
}

// FromError converts an error wrapping one of the sentinels into a diagnostic.
// Errors that wrap no known sentinel are reported as malformed records.
func FromError(err error) Diagnostic {
	var d Diagnostic
	if errors.As(err, &d) {
		return d
	}
	kind := KindMalformedRecord
	switch {
	case errors.Is(err, ErrMissingSource):
		kind = KindMissingSource
	case errors.Is(err, ErrNonNumericValue):
		kind = KindNonNumericValue
	}
	return Diagnostic{Kind: kind, Message: err.Error()}
}

// Collector gathers diagnostics from concurrent workers and logs each one.
type Collector struct {
	mu     sync.Mutex
	items  []Diagnostic
	logger *zap.Logger
}

// NewCollector returns a Collector logging to logger; nil means no logging.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

// Add records d and emits it as a warning.
func (c *Collector) Add(d Diagnostic) {
	c.logger.Warn("recovered",
		zap.String("kind", string(d.Kind)),
		zap.String("group", d.Group),
		zap.String("source", d.Source),
		zap.String("file", d.File),
		zap.Int("line", d.Line),
		zap.String("detail", d.Message),
	)
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// AddAll records every diagnostic in ds.
func (c *Collector) AddAll(ds []Diagnostic) {
	for _, d := range ds {
		c.Add(d)
	}
}

// Items returns the diagnostics ordered by file, line and kind.
func (c *Collector) Items() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Counts returns the number of diagnostics per kind.
func (c *Collector) Counts() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]int)
	for _, d := range c.items {
		out[d.Kind]++
	}
	return out
}

// Len returns the number of diagnostics recorded so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Number coerces raw to a float64. A value that does not coerce yields 0 and
// a NonNumericValue error: a missing count is zero occurrences.
func Number(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return 0, fmt.Errorf("%w: empty value", ErrNonNumericValue)
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNonNumericValue, raw)
	}
	return v, nil
}
