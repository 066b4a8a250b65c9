package authgate

import (
	"os"
	"strings"
)

// PolicyDefaultDeny names the fail-closed rule: when both allow-lists are
// empty the gate denies everyone. This is deliberate, not a fallback to be
// "simplified" away.
const PolicyDefaultDeny = "default_deny"

// AllowList holds the configured sets of authorized identities.
// Entries are normalized (trimmed, lowercased) at construction time.
type AllowList struct {
	emails  map[string]struct{}
	domains map[string]struct{}
}

// NewAllowList builds an AllowList from raw email and domain entries.
func NewAllowList(emails, domains []string) AllowList {
	return AllowList{
		emails:  normalizeSet(emails),
		domains: normalizeSet(domains),
	}
}

// Empty reports whether both lists are empty (the default_deny state).
func (a AllowList) Empty() bool {
	return len(a.emails) == 0 && len(a.domains) == 0
}

// Allows evaluates the allow-list policy for an email address.
// Allowed when the exact email is listed, or when the domain list is
// non-empty and contains the email's domain. Both lists empty denies
// everyone (PolicyDefaultDeny).
func (a AllowList) Allows(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if _, ok := a.emails[email]; ok {
		return true
	}
	if len(a.domains) > 0 {
		if _, domain, ok := strings.Cut(email, "@"); ok && domain != "" {
			if _, listed := a.domains[domain]; listed {
				return true
			}
		}
	}
	return false
}

// Provider returns the allow-list effective for a decision.
// It is invoked per check so security configuration is never cached.
type Provider func() AllowList

// EnvProvider reads the allow-lists from SYSTEM_ALLOWED_EMAILS and
// SYSTEM_ALLOWED_DOMAINS on every call, falling back to the given defaults
// when the corresponding env var is unset.
func EnvProvider(fallbackEmails, fallbackDomains []string) Provider {
	return func() AllowList {
		emails := fallbackEmails
		domains := fallbackDomains
		if v, ok := os.LookupEnv("SYSTEM_ALLOWED_EMAILS"); ok {
			emails = splitCSV(v)
		}
		if v, ok := os.LookupEnv("SYSTEM_ALLOWED_DOMAINS"); ok {
			domains = splitCSV(v)
		}
		return NewAllowList(emails, domains)
	}
}

// StaticProvider always returns the same allow-list.
func StaticProvider(list AllowList) Provider {
	return func() AllowList { return list }
}

func normalizeSet(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		set[entry] = struct{}{}
	}
	return set
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
