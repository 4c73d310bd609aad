// Package htmlcleaner prepares rich-text field values for storage: it
// sanitizes the markup and rewrites links on the site's own domain to
// domain-relative form, so content survives domain changes.
package htmlcleaner

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Cleaner sanitizes and rewrites HTML field values.
type Cleaner struct {
	policy     *bluemonday.Policy
	mainDomain string
}

// New creates a cleaner. mainDomain (e.g. "example.com") may be empty, in
// which case only sanitization is applied.
func New(mainDomain string) *Cleaner {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class", "style", "id").Globally()
	policy.AllowAttrs("target", "rel").OnElements("a")
	policy.AllowElements("figure", "figcaption", "video", "source", "iframe")
	policy.AllowAttrs("src", "controls", "width", "height").OnElements("video", "source", "iframe")
	policy.AllowDataURIImages()

	return &Cleaner{
		policy:     policy,
		mainDomain: strings.TrimPrefix(strings.ToLower(mainDomain), "www."),
	}
}

// CleanForStorage sanitizes the value and strips the main domain from
// absolute URLs in href/src attributes.
func (c *Cleaner) CleanForStorage(html string) string {
	if html == "" {
		return html
	}
	return c.replaceDomains(c.policy.Sanitize(html))
}

var urlAttributePattern = regexp.MustCompile(`(?i)(href|src)="(https?:)?//([^/"]+)(/[^"]*)?"`)

func (c *Cleaner) replaceDomains(html string) string {
	if c.mainDomain == "" {
		return html
	}

	return urlAttributePattern.ReplaceAllStringFunc(html, func(match string) string {
		groups := urlAttributePattern.FindStringSubmatch(match)
		host := strings.TrimPrefix(strings.ToLower(groups[3]), "www.")
		if host != c.mainDomain {
			return match
		}

		path := groups[4]
		if path == "" {
			path = "/"
		}
		return groups[1] + `="` + path + `"`
	})
}
