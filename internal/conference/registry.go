// Package conference manages the ordered list of proceedings search URLs a
// crawl walks through.
package conference

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Year bounds accepted by quick-add.
const (
	MinYear = 2020
	MaxYear = 2030
)

// DefaultPresets maps preset names to URL templates. "{year}" is replaced by
// the selected year.
var DefaultPresets = map[string]string{
	"iccv": "https://iccv.thecvf.com/virtual/{year}/papers.html?layout=mini&filter=author&search=",
	"icml": "https://icml.cc/virtual/{year}/papers.html?layout=mini&filter=author&search=",
}

// Registry is an insertion-ordered, duplicate-free set of conference URLs.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]string
	urls    []string
	index   map[string]struct{}
}

// NewRegistry creates an empty registry. A nil presets map selects DefaultPresets.
func NewRegistry(presets map[string]string) *Registry {
	if presets == nil {
		presets = DefaultPresets
	}
	normalized := make(map[string]string, len(presets))
	for name, tmpl := range presets {
		normalized[strings.ToLower(strings.TrimSpace(name))] = tmpl
	}
	return &Registry{presets: normalized, index: make(map[string]struct{})}
}

// Presets returns the preset names in sorted order.
func (r *Registry) Presets() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetURL renders a preset for year without adding it.
func (r *Registry) PresetURL(preset string, year int) (string, error) {
	tmpl, ok := r.presets[strings.ToLower(strings.TrimSpace(preset))]
	if !ok {
		return "", &crawler.ConfigurationError{Field: "preset", Value: preset, Reason: "unknown conference preset"}
	}
	if year < MinYear || year > MaxYear {
		return "", &crawler.ConfigurationError{
			Field:  "year",
			Value:  fmt.Sprint(year),
			Reason: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear),
		}
	}
	return strings.ReplaceAll(tmpl, "{year}", fmt.Sprint(year)), nil
}

// QuickAdd renders a preset for year, validates it and adds it. It reports
// whether the URL was new.
func (r *Registry) QuickAdd(preset string, year int) (string, bool, error) {
	rawURL, err := r.PresetURL(preset, year)
	if err != nil {
		return "", false, err
	}
	added, err := r.AddValidated(rawURL, year)
	return rawURL, added, err
}

// AddValidated adds rawURL after checking its year segment against year.
func (r *Registry) AddValidated(rawURL string, year int) (bool, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false, &crawler.ConfigurationError{Field: "conference url", Reason: "empty"}
	}
	if err := crawler.ValidateYear(rawURL, year); err != nil {
		return false, err
	}
	return r.add(rawURL), nil
}

// AddLines adds every non-blank line of text without validation and returns
// the number of new URLs.
func (r *Registry) AddLines(text string) int {
	return r.addFrom(strings.NewReader(text))
}

// LoadFile adds the line-delimited URLs of a file.
func (r *Registry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open conference file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return r.addFrom(f), nil
}

func (r *Registry) addFrom(src io.Reader) int {
	scanner := bufio.NewScanner(src)
	added := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if r.add(line) {
			added++
		}
	}
	return added
}

func (r *Registry) add(rawURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[rawURL]; ok {
		return false
	}
	r.index[rawURL] = struct{}{}
	r.urls = append(r.urls, rawURL)
	return true
}

// Remove deletes rawURL and reports whether it was present.
func (r *Registry) Remove(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[rawURL]; !ok {
		return false
	}
	delete(r.index, rawURL)
	for i, u := range r.urls {
		if u == rawURL {
			r.urls = append(r.urls[:i], r.urls[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every URL.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.urls = nil
	r.index = make(map[string]struct{})
	r.mu.Unlock()
}

// List returns the URLs in insertion order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.urls...)
}

// Sources converts the URLs into labelled conference sources.
func (r *Registry) Sources() []crawler.ConferenceSource {
	urls := r.List()
	out := make([]crawler.ConferenceSource, 0, len(urls))
	for _, u := range urls {
		out = append(out, crawler.NewConferenceSource(u))
	}
	return out
}
