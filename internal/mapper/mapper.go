// Package mapper turns the provider's JSON payload into display blocks and
// per-variant text lists, preserving the payload's key order.
package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
)

var ErrFormat = errors.New("unexpected response format")

type entry struct {
	key   string
	value gjson.Result
}

type Result struct {
	// Display holds one block per object-valued top-level entry.
	Display []string
	// Variants maps the 1-based variant number to its texts in key order.
	Variants map[int][]string
	// VariantKeys lists every top-level key in payload order.
	VariantKeys []string
}

// Map parses raw. The top level must be a JSON object.
func Map(raw json.RawMessage) (Result, error) {
	if !gjson.ValidBytes(raw) {
		return Result{}, fmt.Errorf("%w: invalid JSON", ErrFormat)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Result{}, fmt.Errorf("%w: top level is %s, want object", ErrFormat, describe(root))
	}

	entries := orderedEntries(root)
	res := Result{
		Display:     []string{},
		Variants:    make(map[int][]string),
		VariantKeys: make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		res.VariantKeys = append(res.VariantKeys, e.key)
		if !e.value.IsObject() {
			continue
		}
		values := objectValues(e.value)
		res.Display = append(res.Display, strings.ToUpper(e.key)+":\n"+strings.Join(values, "\n"))
		if n, ok := variantNumber(e.key); ok {
			res.Variants[n] = values
		}
	}
	return res, nil
}

// DisplayText joins the display blocks with a blank line.
func (r Result) DisplayText() string {
	return strings.Join(r.Display, "\n\n")
}

// Texts returns the texts of variant i (1-based), or nil when absent.
func (r Result) Texts(i int) []string {
	return r.Variants[i]
}

// Mismatch describes differences between the requested shape and the
// returned one. Positional application tolerates them.
func (r Result) Mismatch(expectVariants, expectSentences int) []string {
	var out []string
	if got := len(r.Variants); got != expectVariants {
		out = append(out, fmt.Sprintf("expected %d variants, got %d", expectVariants, got))
	}
	for i := 1; i <= expectVariants; i++ {
		texts, ok := r.Variants[i]
		if !ok {
			out = append(out, fmt.Sprintf("missing %s", prompt.VariantKey(i)))
			continue
		}
		if len(texts) != expectSentences {
			out = append(out, fmt.Sprintf("%s has %d texts, expected %d", prompt.VariantKey(i), len(texts), expectSentences))
		}
	}
	return out
}

// orderedEntries keeps the first position of a repeated key and its last
// value.
func orderedEntries(obj gjson.Result) []entry {
	var entries []entry
	pos := make(map[string]int)
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if i, ok := pos[k]; ok {
			entries[i].value = value
			return true
		}
		pos[k] = len(entries)
		entries = append(entries, entry{key: k, value: value})
		return true
	})
	return entries
}

func objectValues(obj gjson.Result) []string {
	entries := orderedEntries(obj)
	values := make([]string, 0, len(entries))
	for _, e := range entries {
		values = append(values, coerce(e.value))
	}
	return values
}

// coerce renders a value the way a plain string conversion would: null is
// written as "null", nested values as their JSON text.
func coerce(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return "null"
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return v.String()
	default:
		return v.Raw
	}
}

func variantNumber(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, prompt.VariantKeyPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func describe(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.Type == gjson.Null:
		return "null"
	case v.Type == gjson.String:
		return "string"
	case v.Type == gjson.Number:
		return "number"
	case v.Type == gjson.True, v.Type == gjson.False:
		return "boolean"
	default:
		return "unknown"
	}
}
