package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vendo/internal/common"
)

// ImageService downloads product thumbnails into a per-run folder so the
// export layer can embed them. Downloads are best-effort: any failure is
// logged and the listing keeps only its image URL.
type ImageService struct {
	dir    string
	config common.ImagesConfig
	client *http.Client
	logger arbor.ILogger
}

// NewImageService creates a service writing into dir
func NewImageService(dir string, config common.ImagesConfig, logger arbor.ILogger) (*ImageService, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", dir, err)
	}
	return &ImageService{
		dir:    dir,
		config: config,
		client: &http.Client{Timeout: config.DownloadTimeout},
		logger: logger,
	}, nil
}

// Dir returns the folder downloads are written to
func (s *ImageService) Dir() string {
	return s.dir
}

// DownloadAndStore fetches imageURL and writes it under baseName with an
// extension inferred from the URL or the response content type. Returns
// the stored path, or ok=false when the image could not be fetched.
func (s *ImageService) DownloadAndStore(ctx context.Context, imageURL, baseName string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", imageURL).Msg("Invalid image URL")
		return "", false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", imageURL).Msg("Error downloading image")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", imageURL).
			Msg("Unexpected status downloading image")
		return "", false
	}

	ext := imageExtension(imageURL, resp.Header.Get("Content-Type"))
	dest := filepath.Join(s.dir, sanitizeFileName(baseName)+ext)

	file, err := os.Create(dest)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", dest).Msg("Error creating image file")
		return "", false
	}
	defer file.Close()

	written, err := io.Copy(file, io.LimitReader(resp.Body, s.config.MaxImageSize+1))
	if err != nil {
		s.logger.Warn().Err(err).Str("url", imageURL).Msg("Error writing image file")
		os.Remove(dest)
		return "", false
	}
	if written > s.config.MaxImageSize {
		s.logger.Warn().
			Int64("max_bytes", s.config.MaxImageSize).
			Str("url", imageURL).
			Msg("Image exceeds size limit, discarding")
		os.Remove(dest)
		return "", false
	}

	s.logger.Debug().
		Str("path", dest).
		Int64("bytes", written).
		Msg("Image stored")

	return dest, true
}

func imageExtension(imageURL, contentType string) string {
	if u, err := url.Parse(imageURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		}
	}
	return ".jpg"
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
