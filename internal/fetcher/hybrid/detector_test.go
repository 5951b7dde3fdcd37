package hybrid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectorNeedsRendering(t *testing.T) {
	t.Parallel()

	long := "<html><body>" + strings.Repeat(`<div class="card"><h5 class="card-title">T</h5></div>`, 60) + "</body></html>"
	cases := []struct {
		name string
		body string
		want bool
	}{
		{name: "empty", body: "  \n", want: true},
		{name: "next shell", body: `<div id="__next"></div>`, want: true},
		{name: "angular shell", body: `<app-root ng-version="17.0.0"></app-root>`, want: true},
		{name: "script heavy", body: `<html><script>var a=1;</script><p>t</p></html>`, want: true},
		{name: "unterminated script", body: `<p>x</p><script src="app.js">`, want: true},
		{name: "server rendered", body: long, want: false},
		{name: "short without scripts", body: `<html><body><p>No results</p></body></html>`, want: false},
	}
	d := NewDetector(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, d.NeedsRendering([]byte(tc.body)))
		})
	}
}

func TestScriptDensityIgnoredForLongPages(t *testing.T) {
	t.Parallel()

	d := NewDetector(64)
	body := "<html>" + strings.Repeat("<script>x</script>", 10) + "</html>"
	require.False(t, d.NeedsRendering([]byte(body)))
}
