package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

func TestNewFactoryDefaults(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{}, nil, nil)
	require.Equal(t, 45*time.Second, f.cfg.NavigationTimeout)
	require.Equal(t, 100*time.Millisecond, f.cfg.PollInterval)

	f = NewFactory(Config{NavigationTimeout: time.Second}, nil, nil)
	require.Equal(t, time.Second, f.cfg.NavigationTimeout)
}

func TestAllocatorOptionsGrowWithConfig(t *testing.T) {
	t.Parallel()

	base := len(NewFactory(Config{}, nil, nil).allocatorOptions())
	extended := len(NewFactory(Config{NoSandbox: true, ExecPath: "/usr/bin/chromium"}, nil, nil).allocatorOptions())
	require.Equal(t, base+2, extended)
}

func TestQueryScriptQuotesSelector(t *testing.T) {
	t.Parallel()

	script, err := queryScript(`a[title="pdf"]`)
	require.NoError(t, err)
	require.Contains(t, script, `document.querySelectorAll("a[title=\"pdf\"]")`)

	_, err = queryScript("  ")
	require.Error(t, err)
}

func TestToElementsTrimsText(t *testing.T) {
	t.Parallel()

	got := toElements([]jsElement{{Text: "  Paper A\n", Href: ""}, {Text: "pdf", Href: "https://x/pdf"}})
	require.Equal(t, []crawler.Element{{Text: "Paper A"}, {Text: "pdf", Href: "https://x/pdf"}}, got)
}

func TestClosedSourceIsUnavailable(t *testing.T) {
	t.Parallel()

	tabCtx, tabCancel := context.WithCancel(context.Background())
	allocClosed := false
	src := &Source{
		cfg:         Config{NavigationTimeout: time.Second, PollInterval: time.Millisecond},
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: func() { allocClosed = true },
		logger:      NewFactory(Config{}, nil, nil).logger,
	}
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	require.True(t, allocClosed)

	require.ErrorIs(t, src.Load(context.Background(), "https://example.com"), crawler.ErrSourceUnavailable)
	_, err := src.WaitForSelector(context.Background(), "h5", time.Millisecond)
	require.ErrorIs(t, err, crawler.ErrSourceUnavailable)
}

func TestForwardCancelPropagates(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()
	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	require.Eventually(t, func() bool { return child.Err() != nil }, time.Second, 5*time.Millisecond)
}
