package normalize

import (
	"net"
	"net/url"
	"strings"
)

// Domain reduces a website value to a bare lowercase host: scheme, "www.",
// port, path, query, and trailing dots are removed. Values that do not look
// like a host (no dot, or containing spaces) yield "".
func Domain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " \t") {
		return ""
	}
	return host
}

// Email lowercases and trims an address and strips a "mailto:" prefix.
// Values without exactly one "@" and a dotted domain yield "".
func Email(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "mailto:")
	if strings.Count(s, "@") != 1 || strings.ContainsAny(s, " \t") {
		return ""
	}
	local, domain, _ := strings.Cut(s, "@")
	if local == "" || !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return ""
	}
	return s
}

// EmailDomain returns the domain part of a normalized email, or "".
func EmailDomain(raw string) string {
	e := Email(raw)
	if e == "" {
		return ""
	}
	_, domain, _ := strings.Cut(e, "@")
	return domain
}
