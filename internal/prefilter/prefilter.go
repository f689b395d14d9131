// Package prefilter decides, without any I/O, whether a message is worth
// sending to the completion provider.
package prefilter

import (
	"fmt"
	"strings"

	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/domainset"
)

// Input is the part of a message the pre-filter looks at
type Input struct {
	From    string
	Subject string
	Preview string
}

// Result is the pre-filter decision
type Result struct {
	Passed bool
	Status core.FilterStatus
	Reason string
}

// Rules configures the filter
type Rules struct {
	BlockedDomains         []string
	SenderPrefixes         []string
	SubjectPhrases         []string
	ContentSignals         []string
	ContentSignalThreshold int
}

// DefaultRules returns the curated rule set
func DefaultRules() Rules {
	return Rules{
		BlockedDomains:         DefaultBlockedDomains,
		SenderPrefixes:         DefaultSenderPrefixes,
		SubjectPhrases:         DefaultSubjectPhrases,
		ContentSignals:         DefaultContentSignals,
		ContentSignalThreshold: DefaultContentSignalThreshold,
	}
}

// Filter evaluates messages against a fixed rule set
type Filter struct {
	blocked   *domainset.Set
	prefixes  []string
	subjects  []string
	signals   []string
	threshold int
}

// New creates a filter; phrases are matched case-insensitively
func New(rules Rules) *Filter {
	threshold := rules.ContentSignalThreshold
	if threshold <= 0 {
		threshold = DefaultContentSignalThreshold
	}
	return &Filter{
		blocked:   domainset.New(rules.BlockedDomains, nil),
		prefixes:  normalize(rules.SenderPrefixes),
		subjects:  normalize(rules.SubjectPhrases),
		signals:   normalize(rules.ContentSignals),
		threshold: threshold,
	}
}

func normalize(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Evaluate runs the checks in order: sender domain, sender prefix, subject, content
func (f *Filter) Evaluate(in Input) Result {
	if addr := domainset.ExtractAddress(in.From); addr != "" {
		if _, domain, ok := domainset.SplitAddress(addr); ok && f.blocked.Matches(domain) {
			return reject(core.FilterRejectedSender, fmt.Sprintf("Sender domain %s is on the blocklist", domain))
		}
		for _, prefix := range f.prefixes {
			if strings.HasPrefix(addr, prefix) {
				return reject(core.FilterRejectedSender, fmt.Sprintf("Automated sender address (%s)", prefix))
			}
		}
	}

	if subject := strings.ToLower(in.Subject); subject != "" {
		for _, phrase := range f.subjects {
			if strings.Contains(subject, phrase) {
				return reject(core.FilterRejectedSubject, fmt.Sprintf("Subject contains %q", phrase))
			}
		}
	}

	if count := f.countSignals(in.Preview); count >= f.threshold {
		return reject(core.FilterRejectedContent, fmt.Sprintf("Newsletter content detected (%d signals)", count))
	}

	return Result{Passed: true, Status: core.FilterPassed}
}

// countSignals counts the distinct signal phrases present in the preview
func (f *Filter) countSignals(preview string) int {
	if preview == "" {
		return 0
	}
	lower := strings.ToLower(preview)
	count := 0
	for _, signal := range f.signals {
		if strings.Contains(lower, signal) {
			count++
		}
	}
	return count
}

func reject(status core.FilterStatus, reason string) Result {
	return Result{Passed: false, Status: status, Reason: reason}
}
