package render

import (
	"net/url"
	"strings"
)

// checkURL validates a bundle-supplied URL: absolute, https, and its host
// on the allowlist. Anything else becomes Placeholder, never the raw value.
func (r *Renderer) checkURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Placeholder
	}
	if u.Scheme != "https" {
		return Placeholder
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || !r.allowedHosts[host] {
		return Placeholder
	}
	if u.User != nil {
		// user@host URLs are a classic redirect-confusion trick
		return Placeholder
	}
	return u.String()
}
