package publishers

import (
	"net/url"
	"strings"
)

// normalizedURL is the comparable form of a URL: lowercased scheme and
// authority, path without its trailing slash.
type normalizedURL struct {
	scheme string
	host   string
	path   string
}

func normalizeURL(raw string) (normalizedURL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return normalizedURL{}, false
	}
	path := u.EscapedPath()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	} else {
		path = ""
	}
	return normalizedURL{
		scheme: strings.ToLower(u.Scheme),
		host:   strings.ToLower(u.Host),
		path:   path,
	}, true
}

// urlMatchesBase reports whether candidate is the same as, or a strict
// sub-path of, base. A base without a path never verifies anything: a bare
// host would otherwise claim every URL on it.
func urlMatchesBase(base, candidate string) bool {
	b, ok := normalizeURL(base)
	if !ok || b.path == "" {
		return false
	}
	c, ok := normalizeURL(candidate)
	if !ok {
		return false
	}
	if b.scheme != c.scheme || b.host != c.host {
		return false
	}
	return c.path == b.path || strings.HasPrefix(c.path, b.path+"/")
}

// urlIsRepoOrSubpath is urlMatchesBase extended with the ".git" form: the
// exact repository URL may carry a ".git" suffix, sub-paths may not.
func urlIsRepoOrSubpath(base, candidate string) bool {
	if urlMatchesBase(base, candidate) {
		return true
	}
	b, ok := normalizeURL(base)
	if !ok || b.path == "" {
		return false
	}
	c, ok := normalizeURL(candidate)
	if !ok {
		return false
	}
	return b.scheme == c.scheme && b.host == c.host && c.path == b.path+".git"
}
