// Package redact replaces personal data in free text with placeholders before
// the text leaves the process, and restores it in whatever comes back.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// Mapping holds placeholder to original pairs for one Redact call
type Mapping map[string]string

// Placeholder kinds
const (
	KindURL     = "URL"
	KindEmail   = "EMAIL"
	KindPhone   = "PHONE"
	KindAddress = "ADDRESS"
	KindName    = "NAME"
)

type detector struct {
	kind string
	re   *regexp.Regexp
	// group selects the submatch to replace; 0 replaces the whole match
	group int
}

// Detectors run in this order. URLs and emails go first so the looser
// patterns further down never see them.
var defaultDetectors = []detector{
	{kind: KindURL, re: regexp.MustCompile(`(?i)\b(?:https?://)?(?:[a-z]{2,3}\.)?(?:linkedin\.com/(?:in|pub)|github\.com|twitter\.com|x\.com|gitlab\.com|behance\.net|dribbble\.com)/[A-Za-z0-9_\-.%/]+`)},
	{kind: KindEmail, re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	// international
	{kind: KindPhone, re: regexp.MustCompile(`\+\d{1,3}[\s.\-]?\(?\d{1,4}\)?(?:[\s.\-]?\d{2,4}){2,4}\b`)},
	// north american
	{kind: KindPhone, re: regexp.MustCompile(`(?:\(\d{3}\)\s?|\b\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`)},
	// UK national
	{kind: KindPhone, re: regexp.MustCompile(`\b0\d{3,4}\s?\d{3}\s?\d{3,4}\b`)},
	{kind: KindAddress, re: regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][A-Za-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl|Terrace)\b\.?`)},
	{kind: KindName, re: regexp.MustCompile(`(?m)^[ \t]*(?i:hi|hello|hey|dear)[ \t]+([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)?)\b`), group: 1},
	{kind: KindName, re: regexp.MustCompile(`(?m)^[ \t]*(?i:best|regards|best regards|kind regards|warm regards|thanks|thank you|sincerely|cheers),?[ \t]*\r?\n[ \t]*([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)?)[ \t]*$`), group: 1},
}

// Redactor substitutes personal data with [KIND_n] placeholders
type Redactor struct {
	detectors []detector
}

// New creates a redactor with the built-in detectors
func New() *Redactor {
	return &Redactor{detectors: defaultDetectors}
}

// Redact returns text with every detected value replaced and the mapping
// needed to undo it. Repeated values share one placeholder, and numbers
// already written as placeholders in text are never reused.
func (r *Redactor) Redact(text string) (string, Mapping) {
	s := &session{
		source:   text,
		mapping:  Mapping{},
		byValue:  map[string]string{},
		counters: map[string]int{},
	}
	for _, d := range r.detectors {
		text = s.apply(d, text)
	}
	return text, s.mapping
}

type session struct {
	source   string
	mapping  Mapping
	byValue  map[string]string
	counters map[string]int
}

func (s *session) apply(d detector, text string) string {
	matches := d.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2*d.group], m[2*d.group+1]
		if start < 0 {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(s.placeholder(d.kind, text[start:end]))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func (s *session) placeholder(kind, value string) string {
	key := kind + "\x00" + value
	if p, ok := s.byValue[key]; ok {
		return p
	}
	var p string
	for {
		s.counters[kind]++
		p = fmt.Sprintf("[%s_%d]", kind, s.counters[kind])
		if !strings.Contains(s.source, p) {
			break
		}
	}

	// a later detector can swallow an earlier placeholder; keep originals fully expanded
	if strings.Contains(value, "[") && len(s.mapping) > 0 {
		value = RestoreString(value, s.mapping)
	}
	s.byValue[key] = p
	s.mapping[p] = value
	return p
}

// RestoreString replaces every placeholder in s with its original value
func RestoreString(s string, m Mapping) string {
	if len(m) == 0 || !strings.Contains(s, "[") {
		return s
	}
	return replacer(m).Replace(s)
}

// Restore walks a decoded JSON value and restores placeholders in every
// string, including map keys. Other leaves are returned unchanged.
func Restore(v any, m Mapping) any {
	if len(m) == 0 {
		return v
	}
	return restore(v, replacer(m))
}

func restore(v any, r *strings.Replacer) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return r.Replace(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = restore(e, r)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[r.Replace(k)] = restore(e, r)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = r.Replace(e)
		}
		return out
	default:
		return v
	}
}

func replacer(m Mapping) *strings.Replacer {
	pairs := make([]string, 0, 2*len(m))
	for p, orig := range m {
		pairs = append(pairs, p, orig)
	}
	return strings.NewReplacer(pairs...)
}
