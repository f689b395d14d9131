package factory

import (
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/prefilter"
	"go.uber.org/zap"
)

// FilterFactory creates the pre-filter from the built-in rules and configured extensions
type FilterFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger) *FilterFactory {
	return &FilterFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateFilter creates the pre-filter
func (f *FilterFactory) CreateFilter() *prefilter.Filter {
	pc := f.cfg.GetPrefilter()
	rules := prefilter.DefaultRules()
	rules.BlockedDomains = extend(rules.BlockedDomains, pc.ExtraBlockedDomains)
	rules.SenderPrefixes = extend(rules.SenderPrefixes, pc.ExtraSenderPrefixes)
	rules.SubjectPhrases = extend(rules.SubjectPhrases, pc.ExtraSubjectPhrases)
	rules.ContentSignals = extend(rules.ContentSignals, pc.ExtraContentSignals)
	if pc.ContentSignalThreshold > 0 {
		rules.ContentSignalThreshold = pc.ContentSignalThreshold
	}

	f.logger.Debug("Pre-filter rules loaded",
		zap.Int("blocked_domains", len(rules.BlockedDomains)),
		zap.Int("sender_prefixes", len(rules.SenderPrefixes)),
		zap.Int("subject_phrases", len(rules.SubjectPhrases)),
		zap.Int("content_signals", len(rules.ContentSignals)),
		zap.Int("signal_threshold", rules.ContentSignalThreshold))

	return prefilter.New(rules)
}

// extend copies base so the package-level defaults are never appended to
func extend(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
