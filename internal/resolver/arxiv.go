package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/mtreilly/goarxiv"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

const (
	defaultMaxResults    = 5
	defaultMinSimilarity = 0.9
	arxivPDFBase         = "https://arxiv.org/pdf/"
)

var errNoCloseMatch = errors.New("no sufficiently similar arXiv title")

// Hit is one arXiv search result.
type Hit struct {
	ID    string
	Title string
}

// SearchFunc queries arXiv and returns up to limit hits.
type SearchFunc func(ctx context.Context, query string, limit int) ([]Hit, error)

// ArxivConfig controls the API resolver.
type ArxivConfig struct {
	MaxResults    int
	MinSimilarity float32
}

// ArxivResolver asks the arXiv API for the title and accepts the most similar
// returned title when its Jaro-Winkler similarity reaches MinSimilarity.
type ArxivResolver struct {
	cfg    ArxivConfig
	search SearchFunc
	logger *zap.Logger
}

// NewArxivResolver builds a resolver backed by the goarxiv client.
func NewArxivResolver(cfg ArxivConfig, logger *zap.Logger) (*ArxivResolver, error) {
	client, err := goarxiv.New()
	if err != nil {
		return nil, fmt.Errorf("create arxiv client: %w", err)
	}
	search := func(ctx context.Context, query string, limit int) ([]Hit, error) {
		results, err := client.Search(ctx, query, &goarxiv.SearchOptions{MaxResults: limit})
		if err != nil {
			return nil, fmt.Errorf("arxiv search: %w", err)
		}
		hits := make([]Hit, 0, len(results.Articles))
		for _, article := range results.Articles {
			hits = append(hits, Hit{ID: article.BaseID(), Title: article.Title})
		}
		return hits, nil
	}
	return NewArxivResolverWithSearch(cfg, search, logger), nil
}

// NewArxivResolverWithSearch builds a resolver around a custom search function (primarily for testing).
func NewArxivResolverWithSearch(cfg ArxivConfig, search SearchFunc, logger *zap.Logger) *ArxivResolver {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = defaultMinSimilarity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArxivResolver{cfg: cfg, search: search, logger: logger}
}

// Resolve implements crawler.DocumentResolver. The browsing session is unused.
func (r *ArxivResolver) Resolve(ctx context.Context, _ crawler.PageSource, title string) (res crawler.Resolution) {
	defer recoverResolution(title, &res)
	hits, err := r.search(ctx, titleQuery(title), r.cfg.MaxResults)
	if err != nil {
		return notFound(title, err)
	}
	best, score := bestHit(title, hits)
	if best == nil || score < r.cfg.MinSimilarity {
		r.logger.Debug("no close arxiv match", zap.String("title", title), zap.Float32("score", score))
		return notFound(title, errNoCloseMatch)
	}
	return crawler.Resolution{Link: arxivPDFBase + best.ID}
}

func titleQuery(title string) string {
	cleaned := strings.NewReplacer(`"`, " ", ":", " ").Replace(title)
	return fmt.Sprintf(`ti:"%s"`, strings.Join(strings.Fields(cleaned), " "))
}

func bestHit(title string, hits []Hit) (*Hit, float32) {
	want := normalizeTitle(title)
	var (
		best  *Hit
		score float32
	)
	for i := range hits {
		if hits[i].ID == "" {
			continue
		}
		sim, err := edlib.StringsSimilarity(want, normalizeTitle(hits[i].Title), edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if best == nil || sim > score {
			best, score = &hits[i], sim
		}
	}
	return best, score
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
