package hybrid

import (
	"bytes"
)

const defaultBodyThreshold = 2048

// Detector decides from a static response whether the page needs a real
// browser to render its results.
type Detector struct {
	BodyLengthThreshold int
}

// NewDetector creates a Detector. A zero threshold selects 2 KiB.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = defaultBodyThreshold
	}
	return &Detector{BodyLengthThreshold: threshold}
}

var clientRenderMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// NeedsRendering reports whether body looks like a client-rendered shell.
func (d *Detector) NeedsRendering(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if len(lower) < d.BodyLengthThreshold && scriptShare(lower) >= 25 {
		return true
	}
	for _, marker := range clientRenderMarkers {
		if bytes.Contains(lower, bytes.ToLower(marker)) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of lower covered by <script> elements.
// An unterminated tag covers the rest of the document.
func scriptShare(lower []byte) int {
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered, pos := 0, 0
	for {
		rel := bytes.Index(lower[pos:], []byte(openTag))
		if rel == -1 {
			break
		}
		start := pos + rel
		end := len(lower)
		if gt := bytes.IndexByte(lower[start:], '>'); gt != -1 {
			contentStart := start + gt + 1
			if closeRel := bytes.Index(lower[contentStart:], []byte(closeTag)); closeRel != -1 {
				end = contentStart + closeRel + len(closeTag)
			}
		}
		covered += end - start
		pos = end
		if pos >= len(lower) {
			break
		}
	}
	return covered * 100 / len(lower)
}
