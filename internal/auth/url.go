// Package auth derives authenticated remote URLs for git operations and
// keeps the embedded secrets out of logs and error messages.
package auth

import (
	"net/url"
	"strings"
)

// Mask replaces secrets in redacted output.
const Mask = "********"

// IsHTTPS returns true if rawURL uses the https scheme
func IsHTTPS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "https")
}

// InjectCredentials returns rawURL with username and secret embedded as the
// user info component. Only https URLs are rewritten, and only when both
// username and secret are set; anything else (ssh, git@, file paths, http)
// is returned unchanged. Existing user info is replaced.
//
// Characters that are not allowed in URL user info are percent-escaped, so
// an address like user@example.com stays a single user name.
func InjectCredentials(rawURL, username, secret string) string {
	if username == "" || secret == "" {
		return rawURL
	}
	if !IsHTTPS(rawURL) {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	authURL := *u
	authURL.User = url.UserPassword(username, secret)
	return authURL.String()
}

// StripCredentials removes any user info from rawURL.
func StripCredentials(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}

// Redact masks every occurrence of the given secrets in s, in both their
// raw and URL-escaped forms. Empty secrets are ignored.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, Mask)
		if escaped := escapeUserInfo(secret); escaped != secret {
			s = strings.ReplaceAll(s, escaped, Mask)
		}
	}
	return s
}

// escapeUserInfo returns secret as it appears inside URL user info.
func escapeUserInfo(secret string) string {
	return strings.TrimPrefix(url.UserPassword("x", secret).String(), "x:")
}
