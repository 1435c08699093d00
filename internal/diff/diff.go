package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	SpanEqual   = "equal"
	SpanAdded   = "added"
	SpanRemoved = "removed"
)

// Span is a run of words sharing one diff operation.
type Span struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Segment compares one original segment with its generated rewrite.
type Segment struct {
	Position     int    `json:"position"`
	Before       string `json:"before"`
	After        string `json:"after"`
	Spans        []Span `json:"spans"`
	WordsBefore  int    `json:"words_before"`
	WordsAfter   int    `json:"words_after"`
	ChangedWords int    `json:"changed_words"`
}

type Variant struct {
	Variant  int       `json:"variant"`
	Segments []Segment `json:"segments"`
}

// Words diffs before and after at word granularity. Whitespace is normalised
// to single spaces in the returned spans.
func Words(before, after string) []Span {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, wordArray := dmp.DiffLinesToChars(wordLines(before), wordLines(after))
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, wordArray)

	spans := make([]Span, 0, len(diffs))
	for _, d := range diffs {
		text := strings.Join(strings.Fields(d.Text), " ")
		if text == "" {
			continue
		}
		span := Span{Text: text}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			span.Type = SpanEqual
		case diffmatchpatch.DiffDelete:
			span.Type = SpanRemoved
		case diffmatchpatch.DiffInsert:
			span.Type = SpanAdded
		}
		spans = append(spans, span)
	}
	return spans
}

// Compare builds the per-segment diffs for one variant. Positions without a
// generated text are skipped, matching what the apply step leaves untouched.
func Compare(variant int, before, after []string) Variant {
	out := Variant{Variant: variant, Segments: []Segment{}}
	for j, original := range before {
		if j >= len(after) {
			break
		}
		spans := Words(original, after[j])
		out.Segments = append(out.Segments, Segment{
			Position:     j,
			Before:       original,
			After:        after[j],
			Spans:        spans,
			WordsBefore:  len(strings.Fields(original)),
			WordsAfter:   len(strings.Fields(after[j])),
			ChangedWords: changedWords(spans),
		})
	}
	return out
}

func changedWords(spans []Span) int {
	n := 0
	for _, span := range spans {
		if span.Type == SpanAdded {
			n += len(strings.Fields(span.Text))
		}
	}
	return n
}

func wordLines(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, "\n") + "\n"
}
