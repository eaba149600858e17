// Package clock extracts the observation timestamp and optional duration
// carried as the first token of an SHDR line.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mtconnect/agent-core/internal/model"
)

// Timestamped is the entity produced by extracting a timestamp from the
// leading token of a Tokens value; RemainingTokens carries what follows.
type Timestamped struct {
	Timestamp       time.Time
	Duration        *float64
	RemainingTokens []string
}

func (Timestamped) Kind() model.EntityKind { return model.KindTimestamped }

// ParseError reports a malformed timestamp token.
type ParseError struct {
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("clock: invalid timestamp token %q: %v", e.Token, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor holds the relative-time baseline shared across observations
// from one adapter connection. Zero value is ready to use in absolute-time
// mode; set RelativeTime to engage relative-time semantics.
type Extractor struct {
	RelativeTime bool

	mu      sync.Mutex
	base    time.Time
	offset  time.Duration
	primed  bool
}

// Extract implements the timestamp grammar: empty token means now(); a
// token containing "T" is parsed as ISO-8601 with optional fractional
// seconds truncated to microsecond precision; an "@<double>" suffix is a
// duration in seconds attached to the timestamp; otherwise the token is a
// relative-time offset in microseconds combined with the extractor's
// baseline.
func (e *Extractor) Extract(token string, remaining []string) (Timestamped, error) {
	body, duration, err := splitDuration(token)
	if err != nil {
		return Timestamped{}, &ParseError{Token: token, Err: err}
	}

	var ts time.Time
	switch {
	case body == "":
		ts = time.Now().UTC()
	case strings.Contains(body, "T"):
		parsed, err := parseISO(body)
		if err != nil {
			return Timestamped{}, &ParseError{Token: token, Err: err}
		}
		ts = e.applyRelativeISO(parsed)
	default:
		micros, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Timestamped{}, &ParseError{Token: token, Err: err}
		}
		ts = e.applyRelativeNumeric(micros)
	}

	return Timestamped{
		Timestamp:       ts.Truncate(time.Microsecond),
		Duration:        duration,
		RemainingTokens: remaining,
	}, nil
}

func splitDuration(token string) (body string, duration *float64, err error) {
	idx := strings.LastIndexByte(token, '@')
	if idx < 0 {
		return token, nil, nil
	}
	d, err := strconv.ParseFloat(token[idx+1:], 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid duration suffix: %w", err)
	}
	return token[:idx], &d, nil
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

func parseISO(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// applyRelativeISO returns parsed unchanged in absolute-time mode; in
// relative-time mode the first call establishes base/offset and every call
// returns parsed + offset.
func (e *Extractor) applyRelativeISO(parsed time.Time) time.Time {
	if !e.RelativeTime {
		return parsed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.primed {
		e.base = time.Now().UTC()
		e.offset = e.base.Sub(parsed)
		e.primed = true
	}
	return parsed.Add(e.offset)
}

// applyRelativeNumeric treats micros as a relative-time numeric offset from
// an adapter-local clock; numeric tokens are only meaningful under
// relative-time mode, per §4.2. The first observation anchors base = now()
// and offset = Micros(value); every observation maps to
// base + (Micros(value) − offset), so the first sample lands exactly on base.
func (e *Extractor) applyRelativeNumeric(micros float64) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	value := time.Duration(micros * float64(time.Microsecond))
	if !e.primed {
		e.base = time.Now().UTC()
		e.offset = value
		e.primed = true
	}
	return e.base.Add(value - e.offset)
}
