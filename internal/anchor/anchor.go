// Package anchor places annotation spans on a version's plain text.
//
// Offsets are half-open [Start, End) ranges counted in Unicode code points of
// the plain-text rendering. Numeric offsets are tried first; when they do not
// describe a legal span the anchor text is searched for and the first
// occurrence wins.
package anchor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var ErrAnchorNotFound = errors.New("anchor not found")

// NotFoundError reports how much text was searched for a stale anchor.
type NotFoundError struct {
	TextLength int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("invalid offsets and anchor not found (len=%d)", e.TextLength)
}

func (e *NotFoundError) Unwrap() error {
	return ErrAnchorNotFound
}

// Method records how a span was resolved.
type Method string

const (
	MethodOffsets Method = "offsets"
	MethodSearch  Method = "search"
)

type Span struct {
	Start      int
	End        int
	AnchorText string
	Method     Method
}

// WellFormed reports whether 0 <= start < end <= length.
func WellFormed(start, end, length int) bool {
	return 0 <= start && start < end && end <= length
}

// ResolveSpan validates the requested offsets against plainText or, failing
// that, relocates anchorText in it. The supplied anchorText is kept as the
// snapshot when present; otherwise the covered substring is used.
func ResolveSpan(plainText string, start, end int, anchorText string) (Span, error) {
	runes := []rune(plainText)
	length := len(runes)

	if WellFormed(start, end, length) {
		snapshot := anchorText
		if snapshot == "" {
			snapshot = string(runes[start:end])
		}
		return Span{Start: start, End: end, AnchorText: snapshot, Method: MethodOffsets}, nil
	}

	if anchorText != "" {
		if idx := strings.Index(plainText, anchorText); idx >= 0 {
			pos := utf8.RuneCountInString(plainText[:idx])
			return Span{
				Start:      pos,
				End:        pos + utf8.RuneCountInString(anchorText),
				AnchorText: anchorText,
				Method:     MethodSearch,
			}, nil
		}
	}

	return Span{}, &NotFoundError{TextLength: length}
}
