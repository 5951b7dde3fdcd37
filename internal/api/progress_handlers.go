package api

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// getProgress handles GET /v1/crawl/progress. It always succeeds; an idle
// controller reports an empty snapshot.
func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Crawler.Progress())
}

// getResults handles GET /v1/crawl/results. Records are returned in discovery
// order, including those of a run still in progress.
func (s *Server) getResults(w http.ResponseWriter, _ *http.Request) {
	records := s.deps.Crawler.Results()
	if records == nil {
		records = []crawler.PublicationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// getArtifact streams the spreadsheet of the finished run as an attachment.
// It returns 404 until a run has completed with at least one record.
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	art, err := s.deps.Crawler.Artifact()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := s.deps.Artifacts.GetObject(r.Context(), art.Path)
	if err != nil {
		s.fail(w, r, fmt.Errorf("load artifact %s: %w", art.Path, err))
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", art.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Artifact-SHA256", art.SHA256)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("artifact write failed", zap.Error(err))
	}
}
