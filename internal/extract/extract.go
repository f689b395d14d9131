// Package extract recovers a JSON object from loosely formatted model output.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenced = regexp.MustCompile("```(?:json|JSON)?\\s*([\\s\\S]*?)```")
	braces = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Result is either a parsed value or a parse failure
type Result[T any] struct {
	Value T
	OK    bool
	// Stage names the step that succeeded: "raw", "fenced" or "braces"
	Stage string
}

// ParseFailed reports whether no stage produced a value
func (r Result[T]) ParseFailed() bool {
	return !r.OK
}

// JSON tries, in order, the whole text, the first fenced code block and the
// widest {...} span. It never returns an error; an unparseable text yields a
// Result with OK unset.
func JSON[T any](text string) Result[T] {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result[T]{}
	}

	if v, ok := decode[T](text); ok {
		return Result[T]{Value: v, OK: true, Stage: "raw"}
	}
	if m := fenced.FindStringSubmatch(text); m != nil {
		if v, ok := decode[T](strings.TrimSpace(m[1])); ok {
			return Result[T]{Value: v, OK: true, Stage: "fenced"}
		}
	}
	if span := braces.FindString(text); span != "" {
		if v, ok := decode[T](span); ok {
			return Result[T]{Value: v, OK: true, Stage: "braces"}
		}
	}
	return Result[T]{}
}

// Object is JSON for an untyped object, the shape redaction restores over
func Object(text string) Result[map[string]any] {
	return JSON[map[string]any](text)
}

func decode[T any](s string) (T, bool) {
	var v T
	if s == "" || s == "null" {
		return v, false
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return v, false
	}
	return v, true
}
