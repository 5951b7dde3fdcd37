// Package export renders crawl results as the publications spreadsheet.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// FileName is the name of the produced workbook.
const FileName = "publications_HI_PARIS.xlsx"

// ContentType is the MIME type of xlsx workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const sheetName = "Publications"

// Header is the column order of the output sheet.
var Header = []string{"Conference", "Title", "Hi! PARIS Authors", "All Authors", "Paper"}

// Writer builds the workbook and stores it through a BlobStore.
type Writer struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	clock  crawler.Clock
	prefix string
	logger *zap.Logger
}

// NewWriter wires a Writer. prefix is prepended to every object path.
func NewWriter(
	store crawler.BlobStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	prefix string,
	logger *zap.Logger,
) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:  store,
		hasher: hasher,
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("export"),
	}, nil
}

// ObjectPath returns where the artifact of runID is stored.
func (w *Writer) ObjectPath(runID string) string {
	if w.prefix == "" {
		return path.Join(runID, FileName)
	}
	return path.Join(w.prefix, runID, FileName)
}

// WriteArtifact renders records and uploads the workbook.
func (w *Writer) WriteArtifact(ctx context.Context, runID string, records []crawler.PublicationRecord) (crawler.Artifact, error) {
	if runID == "" {
		return crawler.Artifact{}, fmt.Errorf("run id is required")
	}
	data, err := Render(records)
	if err != nil {
		return crawler.Artifact{}, err
	}
	digest, err := w.hasher.Hash(data)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("hash workbook: %w", err)
	}
	objectPath := w.ObjectPath(runID)
	uri, err := w.store.PutObject(ctx, objectPath, ContentType, bytes.NewReader(data))
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("store workbook: %w", err)
	}
	w.logger.Info("workbook stored",
		zap.String("run_id", runID),
		zap.String("uri", uri),
		zap.Int("records", len(records)),
		zap.Int("bytes", len(data)),
	)
	return crawler.Artifact{
		Name:        FileName,
		Path:        objectPath,
		URI:         uri,
		ContentType: ContentType,
		Size:        len(data),
		SHA256:      digest,
		Records:     len(records),
		CreatedAt:   w.clock.Now(),
	}, nil
}

// Render builds the workbook bytes: a bold header row followed by one row per record.
func Render(records []crawler.PublicationRecord) ([]byte, error) {
	book := excelize.NewFile()
	defer book.Close() //nolint:errcheck // in-memory workbook

	if err := book.SetSheetName(book.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := book.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(Header))
	if err != nil {
		return nil, fmt.Errorf("header range: %w", err)
	}
	if err := book.SetCellStyle(sheetName, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		paper := rec.Paper
		if paper == "" {
			paper = crawler.DocumentNotFound
		}
		row := []any{rec.Conference, rec.Title, rec.MatchedDisplay(), rec.AllAuthors, paper}
		if err := book.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := book.SetColWidth(sheetName, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := book.SetColWidth(sheetName, "B", "D", 48); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
