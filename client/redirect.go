package client

import (
	"net/url"
	"strings"
)

// resolveRedirectURL implements spec §4.3's Location-resolution rule:
// an absolute Location is used verbatim; a relative one is resolved
// against the current request's scheme and host.
func resolveRedirectURL(current *url.URL, location string) (*url.URL, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return url.Parse(location)
	}

	base := current.Scheme + "://" + current.Host
	if strings.HasPrefix(location, "/") {
		return url.Parse(base + location)
	}
	return url.Parse(base + "/" + location)
}
