package domainset

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

var (
	bracketAddr = regexp.MustCompile(`<\s*([^<>\s@]+@[^<>\s@]+)\s*>`)
	bareAddr    = regexp.MustCompile(`[A-Za-z0-9._%+'\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
)

// ExtractAddress returns the lowercased bare address from a "Name <addr>" or bare
// sender header, or "" when no address can be found.
func ExtractAddress(header string) string {
	if m := bracketAddr.FindStringSubmatch(header); m != nil {
		return strings.ToLower(m[1])
	}
	if m := bareAddr.FindString(header); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

// SplitAddress splits a bare address into local part and domain
func SplitAddress(addr string) (local, domain string, ok bool) {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", "", false
	}
	return strings.ToLower(addr[:at]), strings.ToLower(addr[at+1:]), true
}

// Set is a normalized collection of mail domains
type Set struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// New creates a set from the given domains
func New(domains []string, logger *zap.Logger) *Set {
	s := &Set{domains: make(map[string]struct{}, len(domains)), logger: logger}
	s.Add(domains...)
	return s
}

// Add normalizes and adds domains to the set
func (s *Set) Add(domains ...string) {
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "@")
		if d == "" {
			continue
		}
		s.domains[d] = struct{}{}
	}
}

// Len returns the number of domains in the set
func (s *Set) Len() int {
	return len(s.domains)
}

// Has reports an exact (case-insensitive) membership
func (s *Set) Has(domain string) bool {
	_, ok := s.domains[strings.ToLower(domain)]
	return ok
}

// Matches reports whether domain, or its registrable domain, or any parent
// domain is in the set.
func (s *Set) Matches(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || len(s.domains) == 0 {
		return false
	}

	if registrable, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil && s.Has(registrable) {
		s.debug(domain, registrable)
		return true
	}

	for d := domain; d != ""; {
		if s.Has(d) {
			s.debug(domain, d)
			return true
		}
		dot := strings.IndexByte(d, '.')
		if dot < 0 {
			break
		}
		d = d[dot+1:]
	}
	return false
}

func (s *Set) debug(domain, matched string) {
	if s.logger != nil {
		s.logger.Debug("Domain matched set",
			zap.String("domain", domain),
			zap.String("matched", matched))
	}
}
