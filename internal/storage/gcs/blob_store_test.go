package gcs

import (
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "exports"})
	require.ErrorContains(t, err, "client")

	_, err = New(&storage.Client{}, Config{})
	require.ErrorContains(t, err, "bucket")

	store, err := New(&storage.Client{}, Config{Bucket: "exports"})
	require.NoError(t, err)
	require.Equal(t, "exports", store.bucket)
	require.Equal(t, "gs://exports/runs/r1/publications_HI_PARIS.xlsx", store.uri("runs/r1/publications_HI_PARIS.xlsx"))
}

func TestApplyAttrsNamesDownload(t *testing.T) {
	t.Parallel()

	var attrs storage.ObjectAttrs
	applyAttrs(&attrs, "runs/r1/publications_HI_PARIS.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.Equal(t, `attachment; filename="publications_HI_PARIS.xlsx"`, attrs.ContentDisposition)
	require.Equal(t, "no-cache", attrs.CacheControl)
	require.Contains(t, attrs.ContentType, "spreadsheetml")

	var bare storage.ObjectAttrs
	applyAttrs(&bare, "a.xlsx", "")
	require.Empty(t, bare.ContentType)
}
