package buildio

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomnomnom/linkheader"
)

// ImmutableLinkPolicy selects which immutable link wins when several
// responses in a redirect chain advertise one
type ImmutableLinkPolicy int

const (
	// FirstImmutableLink keeps the link seen closest to the original URL
	FirstImmutableLink ImmutableLinkPolicy = iota
	// LastImmutableLink keeps the link seen closest to the final response
	LastImmutableLink
)

// String returns the string representation of an ImmutableLinkPolicy
func (p ImmutableLinkPolicy) String() string {
	switch p {
	case FirstImmutableLink:
		return "first"
	case LastImmutableLink:
		return "last"
	default:
		return "unknown"
	}
}

// RedirectHop records one redirect response in a chain
type RedirectHop struct {
	// StatusCode is the redirect status
	StatusCode int
	// Location is the redirect target, resolved against the hop's URL
	Location string
	// Headers are the redirect response headers
	Headers http.Header
}

// followsRedirect reports the statuses the engine follows. 308 is
// deliberately terminal.
func followsRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect:
		return true
	default:
		return false
	}
}

// immutableLink returns the first Link header entry with the "immutable"
// relation, resolved against base.
func immutableLink(h http.Header, base *url.URL) (string, bool) {
	values := h.Values("Link")
	if len(values) == 0 {
		return "", false
	}
	for _, link := range linkheader.ParseMultiple(values) {
		if !hasRel(link.Rel, "immutable") {
			continue
		}
		target, err := base.Parse(strings.TrimSpace(link.URL))
		if err != nil {
			continue
		}
		return target.String(), true
	}
	return "", false
}

// hasRel reports whether a space separated relation list contains rel
func hasRel(rels, rel string) bool {
	for _, r := range strings.Fields(rels) {
		if strings.EqualFold(r, rel) {
			return true
		}
	}
	return false
}

func (p ImmutableLinkPolicy) apply(result *TransferResult, h http.Header, base *url.URL) {
	link, ok := immutableLink(h, base)
	if !ok {
		return
	}
	if p == FirstImmutableLink && result.ImmutableURL != "" {
		return
	}
	result.ImmutableURL = link
}

// discardBody drains a bounded amount of an unused body so the connection
// can be reused, then closes it.
func discardBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRedirectBody))
	_ = resp.Body.Close()
}

func isHTTPScheme(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
