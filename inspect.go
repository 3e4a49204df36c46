package capsolver

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrTurnstileNotFound is returned when a page has no Turnstile widget.
var ErrTurnstileNotFound = errors.New("no Turnstile widget found")

// Interstitial titles, lower-cased.
var challengeTitles = []string{
	"just a moment...",
	"请稍候...",
	"请稀候…",
	"un instant...",
	"einen moment...",
	"un momento...",
	"bir dakika...",
	"um momento...",
	"een moment...",
	"ちょっと待ってください...",
	"подождите...",
}

// Cloudflare-specific markers (high confidence).
var challengeMarkers = []string{
	"cf-challenge-running",
	"cloudflare-challenge",
	"cf_challenge_response",
	"cf-under-attack",
	"cf-checking-browser",
	"/cdn-cgi/challenge-platform",
}

var renderSitekey = regexp.MustCompile(`sitekey['"]?\s*:\s*['"](0x4[0-9A-Za-z_-]+)['"]`)

// TurnstileParams are the widget attributes a Turnstile task needs.
type TurnstileParams struct {
	WebsiteKey string
	Action     string
	CData      string
}

// TaskOptions returns the metadata option for the widget's action and cdata.
func (p TurnstileParams) TaskOptions() []TaskOption {
	return []TaskOption{WithTaskMetadata(p.Action, p.CData)}
}

// WithDefaults fills the empty fields of p from d. Values already set in p win.
func (p TurnstileParams) WithDefaults(d TurnstileParams) TurnstileParams {
	if p.WebsiteKey == "" {
		p.WebsiteKey = d.WebsiteKey
	}
	if p.Action == "" {
		p.Action = d.Action
	}
	if p.CData == "" {
		p.CData = d.CData
	}
	return p
}

// ExtractTurnstile finds the Turnstile sitekey, data-action and data-cdata in
// a page. The .cf-turnstile container is preferred, then any element with a
// 0x4 data-sitekey, then an explicit turnstile.render call in a script.
func ExtractTurnstile(html string) (TurnstileParams, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return TurnstileParams{}, err
	}

	var params TurnstileParams
	find := func(sel *goquery.Selection) bool {
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			key := strings.TrimSpace(s.AttrOr("data-sitekey", ""))
			if !strings.HasPrefix(key, "0x4") {
				return true
			}
			params = TurnstileParams{
				WebsiteKey: key,
				Action:     strings.TrimSpace(s.AttrOr("data-action", "")),
				CData:      strings.TrimSpace(s.AttrOr("data-cdata", "")),
			}
			return false
		})
		return params.WebsiteKey != ""
	}

	if find(doc.Find(".cf-turnstile[data-sitekey]")) || find(doc.Find("[data-sitekey]")) {
		return params, nil
	}

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := renderSitekey.FindStringSubmatch(s.Text()); m != nil {
			params.WebsiteKey = m[1]
			return false
		}
		return true
	})
	if params.WebsiteKey != "" {
		return params, nil
	}
	return TurnstileParams{}, ErrTurnstileNotFound
}

// IsChallengePage reports whether a response is the Cloudflare interstitial.
// Challenge pages come back as 403, 503 or 429.
func IsChallengePage(statusCode int, html string) bool {
	if statusCode != 403 && statusCode != 503 && statusCode != 429 {
		return false
	}
	return LooksLikeChallenge(html)
}

// LooksLikeChallenge reports whether an HTML snapshot has the interstitial's
// title or one of Cloudflare's challenge markers, regardless of status code.
func LooksLikeChallenge(html string) bool {
	content := strings.ToLower(html)
	for _, marker := range challengeMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, t := range challengeTitles {
		if title == t {
			return true
		}
	}
	return false
}
