// Package prompt turns the user's generation parameters into the single text
// prompt sent to the provider. The prompt is the only thing that pins the
// response shape, so the key naming below must stay in sync with
// internal/mapper.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// SentenceDelimiter joins selected segments into the combined input text.
const SentenceDelimiter = ". "

const (
	VariantKeyPrefix = "variant_"
	TextKeyPrefix    = "text_"
)

const (
	maxExampleVariants  = 2
	maxExampleSentences = 2
)

var (
	ErrInvalidVariantCount = errors.New("variant count must be at least 1")
	ErrEmptyText           = errors.New("combined text is empty")
)

type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneCasual       Tone = "Casual"
	ToneFormal       Tone = "Formal"
	ToneInformed     Tone = "Informed"
	TonePersuasive   Tone = "Persuasive"
	ToneFriendly     Tone = "Friendly"
)

// DefaultTone matches the form's initial selection.
const DefaultTone = ToneProfessional

var tones = []Tone{ToneProfessional, ToneCasual, ToneFormal, ToneInformed, TonePersuasive, ToneFriendly}

func Tones() []Tone {
	out := make([]Tone, len(tones))
	copy(out, tones)
	return out
}

// ParseTone accepts any casing; blank input yields DefaultTone.
func ParseTone(value string) (Tone, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultTone, nil
	}
	for _, tone := range tones {
		if strings.EqualFold(string(tone), trimmed) {
			return tone, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", value)
}

type Request struct {
	CombinedText string
	Tone         Tone
	VariantCount int
	Instructions string
}

func (r Request) Validate() error {
	if r.VariantCount < 1 {
		return ErrInvalidVariantCount
	}
	if strings.TrimSpace(r.CombinedText) == "" {
		return ErrEmptyText
	}
	return nil
}

// Sentences splits combined text on SentenceDelimiter, dropping empty parts.
func Sentences(combined string) []string {
	parts := strings.Split(combined, SentenceDelimiter)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func SentenceCount(combined string) int {
	return len(Sentences(combined))
}

func VariantKey(i int) string { return fmt.Sprintf("%s%d", VariantKeyPrefix, i) }

func TextKey(j int) string { return fmt.Sprintf("%s%d", TextKeyPrefix, j) }

func Build(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	tone := req.Tone
	if tone == "" {
		tone = DefaultTone
	}
	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		instructions = "None"
	}
	sentences := Sentences(req.CombinedText)
	count := len(sentences)

	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d unique variants of the following input text: %s\n\n", req.VariantCount, req.CombinedText)
	b.WriteString("Consider the following instructions:\n")
	fmt.Fprintf(&b, "Tone: %s.\n", tone)
	fmt.Fprintf(&b, "Special instructions: %s\n\n", instructions)
	b.WriteString("Please output the variants in JSON format.\n\n")
	b.WriteString("Each sentence in a variant should keep a word count close to the corresponding sentence in the input text. ")
	b.WriteString("If the first input sentence has 6 words, the first sentence of every variant should have around 6 words; ")
	b.WriteString("if the second has 20 words, the second sentence of every variant should have around 20 words.\n")
	if count > 0 {
		b.WriteString("Input sentence word counts:")
		for j, sentence := range sentences {
			fmt.Fprintf(&b, " %s=%d", TextKey(j+1), len(strings.Fields(sentence)))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nEnsure the number of sentences in each variant matches the number of sentences in the input text (%d).\n\n", count)
	fmt.Fprintf(&b, "Return only a JSON object. Its keys must be %q through %q. ", VariantKey(1), VariantKey(req.VariantCount))
	fmt.Fprintf(&b, "Each value must be an object whose keys are %q through %q in sentence order, mapping to the rewritten sentence.\n", TextKey(1), TextKey(max(count, 1)))
	b.WriteString("For example:\n")
	b.WriteString(example(min(req.VariantCount, maxExampleVariants), min(max(count, 1), maxExampleSentences)))
	return b.String(), nil
}

var ordinals = []string{"first", "second"}

func example(variants, sentences int) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i := 1; i <= variants; i++ {
		fmt.Fprintf(&b, " %q: {", VariantKey(i))
		for j := 1; j <= sentences; j++ {
			if j > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %q: %q", TextKey(j), fmt.Sprintf("%s variant of the %s sentence", strings.ToUpper(ordinals[i-1][:1])+ordinals[i-1][1:], ordinals[j-1]))
		}
		b.WriteString(" }")
		if i < variants {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}
