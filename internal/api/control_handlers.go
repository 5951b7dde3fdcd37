package api

import (
	"net/http"

	"go.uber.org/zap"
)

// startCrawl begins a run over the configured conferences and roster. It
// returns 202 with the first progress snapshot.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	confs := s.deps.Conferences.Sources()
	names := s.deps.Roster.Names()
	if err := s.deps.Crawler.Start(r.Context(), confs, names); err != nil {
		s.fail(w, r, err)
		return
	}
	p := s.deps.Crawler.Progress()
	s.logger.Info("crawl started via API",
		zap.String("run_id", p.RunID),
		zap.String("request_id", requestID(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, p)
}

func (s *Server) stopCrawl(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Crawler.Stop(); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Crawler.Progress())
}

func (s *Server) resumeCrawl(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Crawler.Resume(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Crawler.Progress())
}

// resetCrawl blocks until an in-flight unit commits, then clears the session.
func (s *Server) resetCrawl(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Crawler.Reset(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Crawler.Progress())
}
