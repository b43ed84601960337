package utils

import "golang.org/x/net/publicsuffix"

// BaseDomain returns the registrable domain for a hostname, e.g.
// "news.bbc.co.uk" yields "bbc.co.uk". Hostnames that have no
// registrable suffix (bare TLDs, single labels) are returned as-is.
func BaseDomain(host string) string {
	base, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return base
}
