package scraper

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vendo/internal/common"
)

func testImagesConfig() common.ImagesConfig {
	return common.ImagesConfig{
		Enabled:         true,
		MaxImageSize:    1024,
		DownloadTimeout: 5 * time.Second,
	}
}

func TestImageService_DownloadAndStore(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 128)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	svc, err := NewImageService(dir, testImagesConfig(), common.GetLogger())
	require.NoError(t, err)

	path, ok := svc.DownloadAndStore(context.Background(), server.URL+"/thumb", "camera lens Last 30 days_1")
	require.True(t, ok)

	assert.Equal(t, filepath.Join(dir, "camera_lens_Last_30_days_1.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestImageService_ExtensionFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x1})
	}))
	defer server.Close()

	svc, err := NewImageService(t.TempDir(), testImagesConfig(), common.GetLogger())
	require.NoError(t, err)

	path, ok := svc.DownloadAndStore(context.Background(), server.URL+"/images/item.webp", "x_1")
	require.True(t, ok)
	assert.Equal(t, ".webp", filepath.Ext(path))
}

func TestImageService_OversizedImageDiscarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0x42}, 2048))
	}))
	defer server.Close()

	dir := t.TempDir()
	svc, err := NewImageService(dir, testImagesConfig(), common.GetLogger())
	require.NoError(t, err)

	_, ok := svc.DownloadAndStore(context.Background(), server.URL+"/big.jpg", "big_1")
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial downloads are removed")
}

func TestImageService_HTTPErrorReportedAsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	svc, err := NewImageService(t.TempDir(), testImagesConfig(), common.GetLogger())
	require.NoError(t, err)

	_, ok := svc.DownloadAndStore(context.Background(), server.URL+"/missing.jpg", "x_1")
	assert.False(t, ok)
}
