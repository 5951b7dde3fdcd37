package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var yearSegment = regexp.MustCompile(`/(20\d{2})/`)

// SearchURL appends the form-encoded author name to the template.
func SearchURL(template, author string) string {
	return template + url.QueryEscape(author)
}

// URLYear extracts the first /20YY/ path segment from a URL.
func URLYear(rawURL string) (int, bool) {
	m := yearSegment.FindStringSubmatch(rawURL)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// ValidateYear checks that the first /20YY/ segment of the URL, if any,
// equals year. URLs without a year segment are accepted.
func ValidateYear(rawURL string, year int) error {
	got, ok := URLYear(rawURL)
	if !ok {
		return nil
	}
	if got != year {
		return &ConfigurationError{
			Field:  "conference url",
			Value:  rawURL,
			Reason: fmt.Sprintf("year %d does not match selected year %d", got, year),
		}
	}
	return nil
}

// ConferenceLabel derives a short label from a search URL: its host, e.g.
// "icml.cc". Unparseable URLs label as themselves.
func ConferenceLabel(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(rawURL)
	}
	return u.Host
}

// NewConferenceSource builds a source with a derived label.
func NewConferenceSource(rawURL string) ConferenceSource {
	trimmed := strings.TrimSpace(rawURL)
	return ConferenceSource{URLTemplate: trimmed, Label: ConferenceLabel(trimmed)}
}

// HostOf returns the host of a URL or "unknown".
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
