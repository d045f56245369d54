package service

import "strings"

// googleDomains lists the domains Google delivers to the same mailbox.
var googleDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// NormalizeEmail returns the address as it is stored and shown to the owner
// (surrounding whitespace removed, case preserved) together with its canonical
// form. Both are empty when raw holds only whitespace, which callers treat as
// "no email".
func NormalizeEmail(raw string) (display, canonical string) {
	display = strings.TrimSpace(raw)
	if display == "" {
		return "", ""
	}
	return display, CanonicalizeEmail(display)
}

// CanonicalizeEmail is the key used for email uniqueness and lookups. Two
// addresses that reach the same mailbox share a key:
//
//   - the whole address is lowercased;
//   - for Gmail the local part loses its dots and any +suffix, and
//     googlemail.com folds into gmail.com.
//
// Input without exactly one usable "@" is only lowercased.
func CanonicalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return email
	}

	if googleDomains[domain] {
		if idx := strings.Index(local, "+"); idx != -1 {
			local = local[:idx]
		}
		local = strings.ReplaceAll(local, ".", "")
		domain = "gmail.com"
	}

	return local + "@" + domain
}
