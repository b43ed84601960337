package domain

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"

	"github.com/dzli1/blocking/internal/blocker/common/utils"
)

// Site is the canonical key for one blocked website. The key is the bare
// registrable hostname in lowercase punycode form; "www.example.com" and
// "example.com" normalize to the same Site. Construct via Normalize, the
// zero value is not valid.
type Site string

// Normalize converts user input into a Site key. It accepts bare hostnames
// as well as full URLs: scheme, userinfo, port, path, query and fragment
// are discarded. Unicode names are converted to punycode. IP literals,
// single-label names and anything that does not survive IDNA lookup
// mapping are rejected with ErrInvalidSite.
func Normalize(raw string) (Site, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidSite)
	}

	// discard URL parts around the hostname
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	host = utils.CanonicalHostName(host)
	if host == "" {
		return "", fmt.Errorf("%w: no hostname in %q", ErrInvalidSite, raw)
	}
	if net.ParseIP(host) != nil {
		return "", fmt.Errorf("%w: %q is an ip literal", ErrInvalidSite, host)
	}

	// the lookup profile validates charset and label lengths on top of
	// mapping unicode names to punycode
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidSite, raw, err)
	}
	host = ascii

	if !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: %q needs at least two labels", ErrInvalidSite, raw)
	}

	// www.example.com and example.com name the same site, but www.com
	// style names must keep their prefix
	if rest, ok := strings.CutPrefix(host, "www."); ok && strings.Contains(rest, ".") {
		host = rest
	}

	return Site(host), nil
}

func (s Site) String() string {
	return string(s)
}

// Hostnames returns every hostname the site covers. For a bare key both
// the bare and the www-prefixed forms are returned, so that one blocked
// site shadows both common spellings.
func (s Site) Hostnames() []string {
	host := string(s)
	if strings.HasPrefix(host, "www.") {
		return []string{host}
	}
	return []string{host, "www." + host}
}

// BaseDomain returns the registrable domain the site belongs to, used to
// group related entries in listings.
func (s Site) BaseDomain() string {
	return utils.BaseDomain(string(s))
}
