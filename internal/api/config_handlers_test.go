package api

import (
	"bytes"
	"encoding/csv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/hiparis-pubscraper/internal/config"
)

func TestConferencesAddValidatesYear(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	rec := f.do(http.MethodPost, "/v1/conferences", []byte(`{"url":"`+icml2025+`"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/v1/conferences", []byte(`{"url":"`+icml2025+`"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"added":false`)

	rec = f.do(http.MethodPost, "/v1/conferences",
		[]byte(`{"url":"https://icml.cc/virtual/2024/papers.html?search=","year":2025}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "2024")

	require.Equal(t, []string{icml2025}, f.confs.List())
}

func TestConferencesQuickAdd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	rec := f.do(http.MethodPost, "/v1/conferences/quick", []byte(`{"preset":"iccv","year":2024}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t,
		[]string{"https://iccv.thecvf.com/virtual/2024/papers.html?layout=mini&filter=author&search="},
		f.confs.List(),
	)

	rec = f.do(http.MethodPost, "/v1/conferences/quick", []byte(`{"preset":"neurips"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/conferences/quick", []byte(`{"preset":"icml","year":2019}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConferencesBulkAcceptsTextAndJSON(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/conferences/bulk",
		bytes.NewBufferString("https://a.test/2023/?q=\n\n# comment\nhttps://b.test/?q=\n"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"added":2,"total":2}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/conferences/bulk", []byte(`{"text":"https://b.test/?q=\nhttps://c.test/?q="}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"added":1,"total":3}`, rec.Body.String())
}

func TestConferencesListAndRemove(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	f.confs.AddLines("https://a.test/?q=\nhttps://b.test/?q=")

	rec := f.do(http.MethodGet, "/v1/conferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"label":"a.test"`)
	require.Contains(t, rec.Body.String(), `"presets":["iccv","icml"]`)

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodDelete, "/v1/conferences", nil).Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/v1/conferences?url=https://x.test/", nil).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/v1/conferences?url=https://a.test/?q=", nil).Code)
	require.Equal(t, []string{"https://b.test/?q="}, f.confs.List())

	require.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/v1/conferences?all=true", nil).Code)
	require.Empty(t, f.confs.List())
}

func TestConferencesRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(http.MethodPost, "/v1/conferences", []byte(`{"link":"x"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRosterJSONReplace(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	f.roster.Replace([]string{"Old Name"})

	rec := f.do(http.MethodPut, "/v1/roster", []byte(`{"names":["Ada Lovelace"," Ada Lovelace ","Alan Turing"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/v1/roster", nil)
	require.JSONEq(t, `{"names":["Ada Lovelace","Alan Turing"],"count":2}`, rec.Body.String())

	rec = f.do(http.MethodPut, "/v1/roster", []byte(`{"names":["  "]}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, f.roster.Names(), "failed upload keeps the roster")
}

func TestRosterJSONDropsNullPlaceholders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	rec := f.do(http.MethodPut, "/v1/roster", []byte(`{"names":["nan","Jane Smith"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":1}`, rec.Body.String())
	require.Equal(t, []string{"Jane Smith"}, f.roster.Names())

	rec = f.do(http.MethodPut, "/v1/roster", []byte(`{"names":["None","null"]}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, []string{"Jane Smith"}, f.roster.Names())
}

func TestRosterCSVBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.WriteAll([][]string{
		{"First Name", "Last Name", "Lab"},
		{"Ada", "Lovelace", "x"},
		{"nan", "Ghost", "x"},
		{"Alan", "Turing", "y"},
	}))

	req := httptest.NewRequest(http.MethodPut, "/v1/roster", &buf)
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, f.roster.Names())
}

func TestRosterMultipartXLSX(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	book := excelize.NewFile()
	require.NoError(t, book.SetSheetRow("Sheet1", "A1", &[]any{"Last Name", "First Name"}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A2", &[]any{"Curie", "Marie"}))
	xlsx, err := book.WriteToBuffer()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "members.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/v1/roster", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Marie Curie"}, f.roster.Names())
}

func TestRosterMissingColumns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	req := httptest.NewRequest(http.MethodPut, "/v1/roster?format=csv", bytes.NewBufferString("Name\nAda\n"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "First Name")
}

func TestRosterCorruptWorkbook(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	req := httptest.NewRequest(http.MethodPut, "/v1/roster", bytes.NewBufferString("not a zip"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
