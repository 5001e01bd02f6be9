package oauth

import (
	"fmt"
	"net/url"
	"strings"
)

// Hierarchical schemes that are never acceptable as native-app deep links.
// Custom schemes (myapp://) pass; these well-known ones do not.
var forbiddenSchemes = map[string]bool{
	"ftp":        true,
	"file":       true,
	"data":       true,
	"javascript": true,
	"mailto":     true,
	"about":      true,
	"blob":       true,
	"ws":         true,
	"wss":        true,
}

// ValidateRedirectURI enforces the registration rules: https anywhere,
// http only on localhost/127.0.0.1, and otherwise any non-HTTP custom
// scheme for native apps.
func ValidateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirect URI %q is not a valid URL", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "":
		return fmt.Errorf("redirect URI %q has no scheme", raw)
	case scheme == "https":
		if u.Host == "" {
			return fmt.Errorf("redirect URI %q has no host", raw)
		}
		return nil
	case scheme == "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return fmt.Errorf("http redirect URI %q is only allowed on localhost", raw)
	case forbiddenSchemes[scheme]:
		return fmt.Errorf("redirect URI scheme %q is not allowed", scheme)
	default:
		// Native-app custom scheme.
		return nil
	}
}

// RegisteredRedirectURI reports whether uri is in the client's allow-list.
// Exact string match; no prefix or wildcard logic.
func RegisteredRedirectURI(registered []string, uri string) bool {
	for _, r := range registered {
		if r == uri {
			return true
		}
	}
	return false
}
