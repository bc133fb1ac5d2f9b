// Package urlutil classifies source identifiers and redacts URLs for display.
package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// URL scheme constants.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFile  = "file"
)

// Kind is the transport a source identifier resolves to.
type Kind string

const (
	KindStdin  Kind = "stdin"
	KindRemote Kind = "remote"
	KindFile   Kind = "file"
)

// credentialParamRegex matches query parameters that commonly carry credentials.
var credentialParamRegex = regexp.MustCompile(`(?i)^(password|passwd|pass|token|apikey|api_key|secret|credential|auth|key|username|user)$`)

// IsRemoteURL reports whether u uses the http or https scheme.
func IsRemoteURL(u string) bool {
	switch GetScheme(u) {
	case SchemeHTTP, SchemeHTTPS:
		return true
	default:
		return false
	}
}

// IsFileURL checks if a URL uses the file:// scheme.
func IsFileURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "file://")
}

// Classify returns the kind of source u names. Anything that is neither
// "-" nor an http(s) URL is treated as a local path.
func Classify(u string) Kind {
	switch {
	case u == "-":
		return KindStdin
	case IsRemoteURL(u):
		return KindRemote
	default:
		return KindFile
	}
}

// GetScheme returns the lower-cased scheme of a URL, or an empty string if
// it has none.
func GetScheme(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Scheme)
}

// FilePathFromURL extracts the file path from a file:// URL.
// Both file:///path and file://localhost/path are accepted.
func FilePathFromURL(u string) (string, error) {
	if !IsFileURL(u) {
		return "", fmt.Errorf("not a file:// URL: %s", u)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Host != "" && parsed.Host != "localhost" {
		return "", fmt.Errorf("unsupported host %q in file URL", parsed.Host)
	}
	if parsed.Path == "" {
		return "", fmt.Errorf("empty path in file URL: %s", u)
	}

	return parsed.Path, nil
}

// LocalPath returns the filesystem path for a file:// URL or a plain path.
func LocalPath(u string) (string, error) {
	if IsFileURL(u) {
		return FilePathFromURL(u)
	}
	return u, nil
}

// Redact returns u with the userinfo password and credential-like query
// parameter values masked. Identifiers that are not URLs are returned as is.
func Redact(u string) string {
	if !IsRemoteURL(u) {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}

	if parsed.RawQuery != "" {
		query := parsed.Query()
		changed := false
		for name, values := range query {
			if !credentialParamRegex.MatchString(name) {
				continue
			}
			for i := range values {
				values[i] = "xxxxx"
			}
			changed = true
		}
		if changed {
			parsed.RawQuery = query.Encode()
		}
	}

	return parsed.Redacted()
}
