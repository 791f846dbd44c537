// Package search finds entries below a directory that match a query such as
// `report ext:pdf size:>1MB modified:>2024-01-01`.
package search

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/justyntemme/strop/internal/fs"
)

// ErrBadQuery wraps every parse failure.
var ErrBadQuery = errors.New("bad search query")

// Field is what a term looks at.
type Field int

const (
	FieldName Field = iota
	FieldContents
	FieldExt
	FieldSize
	FieldModified
	FieldDepth
)

// Op compares sizes and dates.
type Op int

const (
	OpEqual Op = iota
	OpGreater
	OpLess
	OpGreaterEq
	OpLessEq
)

// Term is one space-separated part of a query.
type Term struct {
	Field Field
	Value string // lower-cased for name, ext and contents
	Op    Op
	Bytes int64
	Time  time.Time
	Depth int
}

// Query is a parsed search. Every term must match.
type Query struct {
	Raw   string
	Terms []Term
}

// Parse reads a query. Bare words match names: a word with glob characters
// must match the whole name, otherwise it matches a substring. Prefixed
// words are directives: name:, contents:, ext:, size:, modified: and
// depth:. Values may be quoted.
func Parse(input string) (Query, error) {
	q := Query{Raw: input}
	var errs []error
	for _, part := range splitQuoted(strings.TrimSpace(input)) {
		t, err := parseTerm(part)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		q.Terms = append(q.Terms, t)
	}
	return q, errors.Join(errs...)
}

func splitQuoted(s string) []string {
	var parts []string
	var cur strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
		case r == quote:
			quote = 0
		case r == ' ' && quote == 0:
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func parseTerm(s string) (Term, error) {
	key, value, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return nameTerm(s)
	}
	switch strings.ToLower(key) {
	case "name", "filename", "file":
		return nameTerm(value)
	case "contents", "content", "text":
		if value == "" {
			return Term{}, fmt.Errorf("%w: empty contents", ErrBadQuery)
		}
		return Term{Field: FieldContents, Value: strings.ToLower(value)}, nil
	case "ext", "extension", "type":
		value = strings.ToLower(strings.TrimPrefix(value, "."))
		return Term{Field: FieldExt, Value: "." + value}, nil
	case "size":
		op, rest := parseOp(value)
		n, err := humanize.ParseBytes(rest)
		if err != nil {
			return Term{}, fmt.Errorf("%w: size %q: %v", ErrBadQuery, value, err)
		}
		return Term{Field: FieldSize, Value: value, Op: op, Bytes: int64(n)}, nil
	case "modified", "date", "mtime":
		op, rest := parseOp(value)
		t, err := parseDate(rest, time.Now())
		if err != nil {
			return Term{}, err
		}
		return Term{Field: FieldModified, Value: value, Op: op, Time: t}, nil
	case "depth", "recursive":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return Term{}, fmt.Errorf("%w: depth %q", ErrBadQuery, value)
		}
		return Term{Field: FieldDepth, Depth: n}, nil
	}
	// "a:b" with an unknown prefix is a name, as on systems that allow colons.
	return nameTerm(s)
}

func nameTerm(s string) (Term, error) {
	s = strings.ToLower(s)
	if !doublestar.ValidatePattern(s) {
		return Term{}, fmt.Errorf("%w: pattern %q", ErrBadQuery, s)
	}
	return Term{Field: FieldName, Value: s}, nil
}

func parseOp(s string) (Op, string) {
	s = strings.TrimSpace(s)
	for _, p := range []struct {
		prefix string
		op     Op
	}{{">=", OpGreaterEq}, {"<=", OpLessEq}, {">", OpGreater}, {"<", OpLess}, {"=", OpEqual}} {
		if strings.HasPrefix(s, p.prefix) {
			return p.op, strings.TrimSpace(s[len(p.prefix):])
		}
	}
	return OpEqual, s
}

var dateLayouts = []string{"2006-01-02", "2006-01", "2006/01/02", "01/02/2006", "Jan 2, 2006"}

func parseDate(s string, now time.Time) (time.Time, error) {
	midnight := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
	switch strings.ToLower(s) {
	case "today":
		return midnight(now), nil
	case "yesterday":
		return midnight(now.AddDate(0, 0, -1)), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	case "year":
		return now.AddDate(-1, 0, 0), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrBadQuery, s)
}

// Empty reports whether the query has no terms that filter entries.
func (q Query) Empty() bool {
	for _, t := range q.Terms {
		if t.Field != FieldDepth {
			return false
		}
	}
	return true
}

// Depth returns the depth: term, or def.
func (q Query) Depth(def int) int {
	for _, t := range q.Terms {
		if t.Field == FieldDepth {
			return t.Depth
		}
	}
	return def
}

// Contents returns the contents: patterns.
func (q Query) Contents() []string {
	var out []string
	for _, t := range q.Terms {
		if t.Field == FieldContents {
			out = append(out, t.Value)
		}
	}
	return out
}

// MatchEntry checks every term except contents, which needs the file.
func (q Query) MatchEntry(e fs.Entry) bool {
	for _, t := range q.Terms {
		if !t.matchEntry(e) {
			return false
		}
	}
	return true
}

func (t Term) matchEntry(e fs.Entry) bool {
	switch t.Field {
	case FieldName:
		name := strings.ToLower(e.Name)
		if !strings.ContainsAny(t.Value, "*?[{") {
			return strings.Contains(name, t.Value)
		}
		ok, _ := doublestar.Match(t.Value, name)
		return ok
	case FieldExt:
		return e.Kind != fs.KindDirectory && strings.ToLower(filepath.Ext(e.Name)) == t.Value
	case FieldSize:
		return e.HasSize && compare(e.Size, t.Bytes, t.Op)
	case FieldModified:
		if e.ModTime.IsZero() {
			return false
		}
		if t.Op == OpEqual {
			ey, em, ed := e.ModTime.Date()
			ty, tm, td := t.Time.Date()
			return ey == ty && em == tm && ed == td
		}
		return compare(e.ModTime.UnixNano(), t.Time.UnixNano(), t.Op)
	case FieldContents:
		return e.Kind == fs.KindFile
	}
	return true
}

func compare(v, target int64, op Op) bool {
	switch op {
	case OpGreater:
		return v > target
	case OpLess:
		return v < target
	case OpGreaterEq:
		return v >= target
	case OpLessEq:
		return v <= target
	default:
		return v == target
	}
}
