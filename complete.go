package luasense

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jward/luasense/internal/analysis"
)

// ErrCursor is returned for a cursor outside the source text.
var ErrCursor = errors.New("luasense: cursor out of range")

// Request is one completion request.
type Request struct {
	// Source is the full text of the edited file.
	Source string
	// Cursor is the byte offset of the cursor in Source.
	Cursor int
	// Prefix is the partially typed name before the cursor. When empty it
	// is taken from Source; otherwise Source must end with it at the
	// cursor. "." and ":" request the fields of the expression before the
	// cursor.
	Prefix string
	// ActivatedManually is set when the user asked for completions
	// explicitly rather than by typing.
	ActivatedManually bool
}

// Complete returns the completions at the cursor, sorted by name. Source
// that does not parse cleanly is analysed as far as it is recognised.
func (e *Engine) Complete(ctx context.Context, req Request) ([]Suggestion, error) {
	src := req.Source
	if req.Cursor < 0 || req.Cursor > len(src) {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrCursor, req.Cursor, len(src))
	}

	prefix := req.Prefix
	switch {
	case prefix == "":
		prefix = identBefore(src, req.Cursor)
	case !strings.HasSuffix(src[:req.Cursor], prefix):
		return nil, fmt.Errorf("%w: prefix %q does not end at %d", ErrCursor, prefix, req.Cursor)
	}
	if prefix == "." || prefix == ":" {
		prefix = ""
	}
	charsToPrefix := req.Cursor - len(prefix)
	dot := operatorBefore(src, charsToPrefix)
	if dot == "" && prefix == "" && !req.ActivatedManually {
		return nil, nil
	}
	if prefix != "" && prefix[0] >= '0' && prefix[0] <= '9' {
		// a number literal
		return nil, nil
	}
	continuePos := req.Cursor + len(identAfter(src, req.Cursor))

	opts := e.analysisOptions()
	opts.Modules = e.cache
	a := analysis.New(opts)
	if err := a.Write(src[:charsToPrefix]); err != nil {
		return nil, fmt.Errorf("luasense: complete: %w", err)
	}
	if err := a.Write(analysis.Placeholder); err != nil {
		return nil, fmt.Errorf("luasense: complete: %w", err)
	}
	if err := a.End(ctx, src[continuePos:]); err != nil {
		return nil, fmt.Errorf("luasense: complete: %w", err)
	}

	out, err := a.SolveQuery(ctx, analysis.Query{Prefix: prefix, Dot: dot})
	if err != nil {
		return nil, fmt.Errorf("luasense: complete: %w", err)
	}
	e.log.Debug("complete", "session", a.ID(), "cursor", req.Cursor, "prefix", prefix, "dot", dot, "results", len(out))
	return out, nil
}

// Offset converts a 1-based line and column (in bytes) to an offset in
// src. A column past the end of its line clamps to the line end.
func Offset(src string, line, col int) (int, error) {
	if line < 1 || col < 1 {
		return 0, fmt.Errorf("%w: %d:%d", ErrCursor, line, col)
	}
	off := 0
	for l := 1; l < line; l++ {
		i := strings.IndexByte(src[off:], '\n')
		if i < 0 {
			return 0, fmt.Errorf("%w: line %d past end of source", ErrCursor, line)
		}
		off += i + 1
	}
	end := len(src)
	if i := strings.IndexByte(src[off:], '\n'); i >= 0 {
		end = off + i
	}
	return min(off+col-1, end), nil
}

// operatorBefore returns "." or ":" when the byte before pos is a field
// access or method call operator. ".." is concatenation and "::" a label.
func operatorBefore(src string, pos int) string {
	if pos < 1 {
		return ""
	}
	c := src[pos-1]
	if c != '.' && c != ':' {
		return ""
	}
	if pos >= 2 && src[pos-2] == c {
		return ""
	}
	return string(c)
}

func identBefore(src string, pos int) string {
	i := pos
	for i > 0 && isIdentByte(src[i-1]) {
		i--
	}
	return src[i:pos]
}

func identAfter(src string, pos int) string {
	i := pos
	for i < len(src) && isIdentByte(src[i]) {
		i++
	}
	return src[pos:i]
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}
