// Package errs defines the diagnostic kinds and accumulator used across the
// parser, static-env builder, evaluator, and query layer (spec §7).
package errs

import (
	"fmt"
	"sort"
	"strings"

	"nls.dev/nls/internal/position"
)

// Kind distinguishes the five diagnostic families named in spec §7.
type Kind int

const (
	KindParse Kind = iota
	KindStaticBinding
	KindEvaluation
	KindIO
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindStaticBinding:
		return "static-binding"
	case KindEvaluation:
		return "evaluation"
	case KindIO:
		return "io"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a single diagnostic: a kind, a message, and a range. Errors
// lacking a precise position use position.Sentinel (spec §7).
type Error struct {
	Kind    Kind
	Message string
	Range   position.Range
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Range, e.Message)
}

// Newf builds an Error with a precise range.
func Newf(kind Kind, r position.Range, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Range: r}
}

// NewSentinelf builds an Error with no precise position, falling back to
// the whole-document sentinel range.
func NewSentinelf(kind Kind, format string, args ...any) *Error {
	return Newf(kind, position.Sentinel, format, args...)
}

// List accumulates diagnostics in the order they are discovered. It is the
// shared accumulator passed to the parser, static-env builder, and the
// whole-document evaluation pass that feeds textDocument/diagnostic.
type List struct {
	errs []*Error
}

// Add appends err to the list.
func (l *List) Add(err *Error) {
	l.errs = append(l.errs, err)
}

// Addf is a convenience wrapper combining Newf and Add.
func (l *List) Addf(kind Kind, r position.Range, format string, args ...any) {
	l.Add(Newf(kind, r, format, args...))
}

// Len reports the number of accumulated diagnostics.
func (l *List) Len() int { return len(l.errs) }

// All returns the accumulated diagnostics in discovery order.
func (l *List) All() []*Error {
	out := make([]*Error, len(l.errs))
	copy(out, l.errs)
	return out
}

// Sort orders diagnostics by range (start then end), matching the total
// order spec §3 defines for Range.
func (l *List) Sort() {
	sort.SliceStable(l.errs, func(i, j int) bool {
		return position.Less(l.errs[i].Range, l.errs[j].Range)
	})
}

// Error implements the error interface so a List can be returned wherever a
// single error is expected (e.g. from a function that only fails via
// diagnostics).
func (l *List) Error() string {
	var b strings.Builder
	for i, e := range l.errs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Error())
	}
	return b.String()
}
