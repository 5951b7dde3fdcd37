package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/roster"
)

const maxUploadBytes = 10 << 20

type conferenceRequest struct {
	URL  string `json:"url"`
	Year *int   `json:"year"`
}

type quickAddRequest struct {
	Preset string `json:"preset"`
	Year   *int   `json:"year"`
}

type bulkRequest struct {
	Text string `json:"text"`
}

type rosterRequest struct {
	Names []string `json:"names"`
}

func (s *Server) year(req *int) int {
	if req == nil {
		return s.cfg.Conferences.Year
	}
	return *req
}

func (s *Server) listConferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"conferences": s.deps.Conferences.Sources(),
		"presets":     s.deps.Conferences.Presets(),
		"year":        s.cfg.Conferences.Year,
	})
}

// addConference validates the URL's year segment before adding it. Duplicates
// are accepted and reported with added=false.
func (s *Server) addConference(w http.ResponseWriter, r *http.Request) {
	var req conferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	added, err := s.deps.Conferences.AddValidated(req.URL, s.year(req.Year))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"url": strings.TrimSpace(req.URL), "added": added})
}

func (s *Server) quickAddConference(w http.ResponseWriter, r *http.Request) {
	var req quickAddRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rawURL, added, err := s.deps.Conferences.QuickAdd(req.Preset, s.year(req.Year))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"url": rawURL, "added": added})
}

// bulkAddConferences adds line-delimited URLs without year validation. The
// body is either {"text": "..."} or plain text.
func (s *Server) bulkAddConferences(w http.ResponseWriter, r *http.Request) {
	var text string
	if isJSON(r) {
		var req bulkRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		text = req.Text
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			s.fail(w, r, &crawler.ConfigurationError{Field: "body", Reason: err.Error()})
			return
		}
		text = string(body)
	}
	added := s.deps.Conferences.AddLines(text)
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "total": len(s.deps.Conferences.List())})
}

// removeConference deletes ?url=... or, with ?all=true, every conference.
func (s *Server) removeConference(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("all") == "true" {
		s.deps.Conferences.Clear()
		writeJSON(w, http.StatusOK, map[string]any{"removed": "all"})
		return
	}
	rawURL := strings.TrimSpace(q.Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	if !s.deps.Conferences.Remove(rawURL) {
		writeError(w, http.StatusNotFound, "conference not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": rawURL})
}

func (s *Server) getRoster(w http.ResponseWriter, _ *http.Request) {
	names := s.deps.Roster.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names, "count": len(names)})
}

// putRoster replaces the roster from a multipart upload (field "file"), a
// JSON {"names": [...]} body or a raw xlsx/csv body. The raw format comes
// from ?format= or the content type and defaults to xlsx.
func (s *Server) putRoster(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		count int
		err   error
	)
	switch {
	case mediaType == "multipart/form-data":
		count, err = s.rosterFromMultipart(w, r)
	case mediaType == "application/json":
		var req rosterRequest
		if err = decodeJSON(w, r, &req); err == nil {
			names := roster.NewStore(req.Names...).Names()
			if len(names) == 0 {
				err = crawler.ErrEmptyRoster
			} else {
				s.deps.Roster.Replace(names)
				count = len(names)
			}
		}
	default:
		format := roster.FormatXLSX
		if f := r.URL.Query().Get("format"); f != "" {
			format = roster.FormatFromName("roster." + f)
		} else if mediaType == "text/csv" {
			format = roster.FormatCSV
		}
		count, err = s.deps.Roster.LoadFrom(http.MaxBytesReader(w, r.Body, maxUploadBytes), format)
	}
	if err != nil {
		s.fail(w, r, rosterError(err))
		return
	}
	s.logger.Info("roster replaced", zap.Int("authors", count))
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *Server) rosterFromMultipart(w http.ResponseWriter, r *http.Request) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		return 0, &crawler.ConfigurationError{Field: "file", Reason: err.Error()}
	}
	defer file.Close() //nolint:errcheck // multipart temp file
	return s.deps.Roster.LoadFrom(file, roster.FormatFromName(header.Filename))
}

// rosterError marks parse failures of the uploaded file as client errors.
func rosterError(err error) error {
	if statusFor(err) != http.StatusInternalServerError {
		return err
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &crawler.ConfigurationError{Field: "roster", Reason: fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit)}
	}
	return &crawler.ConfigurationError{Field: "roster", Reason: err.Error()}
}

func isJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
}
