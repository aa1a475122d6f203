package schema

import (
	"net/url"
	"strings"
)

// defaultPorts maps URL schemes to the port implied when none is given.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// RequestKey builds the cache key for a method and URL.
// Fragments never reach the network, so they are not part of the identity.
func RequestKey(method, rawURL string) string {
	return strings.ToUpper(method) + " " + NormalizeURL(rawURL)
}

// NormalizeURL strips the fragment and a default port from rawURL and
// lower-cases the host. Unparseable input is returned unchanged.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Host = canonicalHost(u)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// Origin reduces u to its scheme and host, without the scheme's default port.
func Origin(u *url.URL) *url.URL {
	return &url.URL{Scheme: strings.ToLower(u.Scheme), Host: canonicalHost(u)}
}

// canonicalHost returns the lower-cased host of u, dropping the port when it
// is the scheme default.
func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Host)
	if p := u.Port(); p != "" && p == defaultPorts[strings.ToLower(u.Scheme)] {
		host = strings.TrimSuffix(host, ":"+p)
	}
	return host
}

// SameOrigin reports whether a and b share scheme, host and port.
// An omitted port is treated as the scheme's default.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return false
	}
	if !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	return effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	return defaultPorts[strings.ToLower(u.Scheme)]
}
