package anchor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fox = "The quick brown fox"

func TestResolveSpan(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		start, end int
		anchor     string
		want       Span
	}{
		{
			name: "valid offsets snapshot substring",
			text: fox, start: 4, end: 9,
			want: Span{Start: 4, End: 9, AnchorText: "quick", Method: MethodOffsets},
		},
		{
			name: "valid offsets keep supplied anchor",
			text: fox, start: 4, end: 9, anchor: "quick!",
			want: Span{Start: 4, End: 9, AnchorText: "quick!", Method: MethodOffsets},
		},
		{
			name: "missing offsets fall back to search",
			text: fox, start: -1, end: -1, anchor: "brown",
			want: Span{Start: 10, End: 15, AnchorText: "brown", Method: MethodSearch},
		},
		{
			name: "end past text falls back to search",
			text: fox, start: 16, end: 40, anchor: "fox",
			want: Span{Start: 16, End: 19, AnchorText: "fox", Method: MethodSearch},
		},
		{
			name: "empty span falls back to search",
			text: fox, start: 5, end: 5, anchor: "The",
			want: Span{Start: 0, End: 3, AnchorText: "The", Method: MethodSearch},
		},
		{
			name: "repeated phrase anchors to first occurrence",
			text: "a b a b", start: -1, end: -1, anchor: "a b",
			want: Span{Start: 0, End: 3, AnchorText: "a b", Method: MethodSearch},
		},
		{
			name: "whole text",
			text: fox, start: 0, end: 19,
			want: Span{Start: 0, End: 19, AnchorText: fox, Method: MethodOffsets},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveSpan(tc.text, tc.start, tc.end, tc.anchor)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveSpan_NotFound(t *testing.T) {
	_, err := ResolveSpan(fox, -1, -1, "zzz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnchorNotFound))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 19, nf.TextLength)
	assert.Contains(t, err.Error(), "len=19")
}

func TestResolveSpan_NoOffsetsNoAnchor(t *testing.T) {
	_, err := ResolveSpan(fox, 9, 4, "")
	assert.ErrorIs(t, err, ErrAnchorNotFound)

	_, err = ResolveSpan("", 0, 0, "")
	assert.ErrorIs(t, err, ErrAnchorNotFound)
}

func TestResolveSpan_CountsCodePoints(t *testing.T) {
	text := "Größe über alles"

	span, err := ResolveSpan(text, -1, -1, "über")
	require.NoError(t, err)
	assert.Equal(t, 6, span.Start)
	assert.Equal(t, 10, span.End)

	span, err = ResolveSpan(text, 0, 5, "")
	require.NoError(t, err)
	assert.Equal(t, "Größe", span.AnchorText)

	_, err = ResolveSpan(text, 0, 17, "")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 16, nf.TextLength)
}
