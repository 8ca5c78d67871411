package bypass

import (
	"bytes"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// Detector examines a fetch result to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *storage.FetchResult) (detected bool, source string)

// Signature describes how a protection vendor's challenge page looks.
// A result matches when its status is one of Statuses (any status if empty)
// and at least one of the server, header or body markers is present.
type Signature struct {
	Source   string
	Statuses []int
	// Servers are lower-case substrings of the Server header.
	Servers []string
	// Headers are header names whose presence alone is conclusive.
	Headers []string
	Bodies  []string
}

// Detector turns the signature into a Detector.
func (s Signature) Detector() Detector {
	return func(res *storage.FetchResult) (bool, string) {
		if len(s.Statuses) > 0 && !slices.Contains(s.Statuses, res.StatusCode) {
			return false, ""
		}
		server := strings.ToLower(header(res.Headers, "Server"))
		for _, marker := range s.Servers {
			if strings.Contains(server, marker) {
				return true, s.Source
			}
		}
		for _, h := range s.Headers {
			if header(res.Headers, h) != "" {
				return true, s.Source
			}
		}
		for _, marker := range s.Bodies {
			if bytes.Contains(res.Body, []byte(marker)) {
				return true, s.Source
			}
		}
		return false, ""
	}
}

var (
	cloudflare = Signature{
		Source:   "Cloudflare",
		Statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		Servers:  []string{"cloudflare"},
		Bodies:   []string{"cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare"},
	}
	dataDome = Signature{
		Source:   "DataDome",
		Statuses: []int{http.StatusForbidden},
		Servers:  []string{"datadome"},
		Headers:  []string{"X-DataDome", "X-DataDome-Response"},
		Bodies:   []string{"geo.captcha-delivery.com", "datadome"},
	}
	perimeterX = Signature{
		Source:   "PerimeterX",
		Statuses: []int{http.StatusForbidden},
		Headers:  []string{"X-Px-Captcha"},
		Bodies:   []string{"client.perimeterx.net", "px-captcha", "_pxBlock"},
	}
)

// DefaultDetectors returns the standard list of bot protection detectors.
// The search engine's own challenge comes first.
func DefaultDetectors() []Detector {
	return []Detector{
		detectGoogle,
		cloudflare.Detector(),
		detectAkamai,
		dataDome.Detector(),
		perimeterX.Detector(),
	}
}

// Analyze runs the result through all provided detectors. It updates the result
// in place with the detection status and returns true if any detection triggered.
func Analyze(res *storage.FetchResult, detectors []Detector) bool {
	if res == nil {
		return false
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			res.DetectedBot = true
			res.DetectionSrc = source
			return true
		}
	}
	res.DetectedBot = false
	res.DetectionSrc = ""
	return false
}

func header(headers map[string][]string, key string) string {
	if v := http.Header(headers).Get(key); v != "" {
		return v
	}
	for k, vals := range headers {
		if strings.EqualFold(k, key) && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

var googleMarkers = []string{
	"Our systems have detected unusual traffic",
	"Unsere Systeme haben ungewöhnlichen Datenverkehr",
	`id="captcha-form"`,
	"www.google.com/recaptcha/api.js",
}

// detectGoogle recognizes the "sorry" interstitial that replaces result pages
// once the engine suspects automated traffic. It is often served with 200 or
// 429 after a redirect to /sorry/index.
func detectGoogle(res *storage.FetchResult) (bool, string) {
	if u, err := url.Parse(res.URL); err == nil && strings.HasPrefix(u.Path, "/sorry/") {
		return true, "Google"
	}
	for _, marker := range googleMarkers {
		if bytes.Contains(res.Body, []byte(marker)) {
			return true, "Google"
		}
	}
	if res.StatusCode == http.StatusTooManyRequests && bytes.Contains(res.Body, []byte("g-recaptcha")) {
		return true, "Google"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures. The generic block page
// only counts when both its markers are present.
func detectAkamai(res *storage.FetchResult) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(res.Headers, "Server")), "akamai") {
		return true, "Akamai"
	}
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}
