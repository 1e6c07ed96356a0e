package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/imaging"
	"github.com/sakif/recipebox/internal/storage"
)

// DownloadTimeout bounds one remote image download.
const DownloadTimeout = 15 * time.Second

// Spoonacular's CDN refuses requests that do not look like a browser.
const (
	downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	downloadAccept    = "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5"
)

// ErrStorageUnavailable means the image could not be stored: no backend is
// configured, or the upload failed. Callers save the recipe without the
// image and tell the user.
var ErrStorageUnavailable = errors.New("service/image: image storage unavailable")

// User-facing image messages.
const (
	MsgImageType    = "Invalid image type. Allowed: png, jpg, jpeg, gif, webp"
	MsgImageProcess = "Could not process image, please try another"
	MsgImageTooBig  = "Image is too large (10 MB max)"
)

// ImageService normalizes recipe images and puts them in storage.
//
// PIPELINE:
//
//	bytes → decode → flatten onto white → fit 800x600 → JPEG q85 → store
type ImageService struct {
	store  storage.Store // nil when no backend is configured
	client *http.Client
	logger *slog.Logger
}

// NewImageService creates an ImageService. store may be nil; client may be
// nil, in which case a client with DownloadTimeout is used.
func NewImageService(store storage.Store, client *http.Client, logger *slog.Logger) *ImageService {
	if client == nil {
		client = &http.Client{Timeout: DownloadTimeout}
	}
	return &ImageService{store: store, client: client, logger: logger}
}

// Enabled reports whether a storage backend is configured.
func (s *ImageService) Enabled() bool {
	return s.store != nil
}

// FromUpload processes an uploaded file and returns its stored URL.
//
// Errors:
//   - ErrValidation: the extension is not allowed, the file is too large,
//     or it does not decode. Nothing is stored.
//   - ErrStorageUnavailable: the image is fine but could not be stored.
func (s *ImageService) FromUpload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !imaging.AllowedExtension(filename) {
		return "", apperror.ValidationFailed("image", MsgImageType)
	}

	data, err := io.ReadAll(io.LimitReader(r, imaging.MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("service/image: reading upload: %w", err)
	}
	if len(data) > imaging.MaxUploadBytes {
		return "", apperror.ValidationFailed("image", MsgImageTooBig)
	}

	jpegData, err := imaging.Process(data)
	if err != nil {
		s.logger.Info("upload rejected", slog.String("filename", filename), slog.String("error", err.Error()))
		return "", apperror.ValidationFailed("image", MsgImageProcess)
	}

	return s.put(ctx, jpegData)
}

// FromURL copies a remote image into storage and returns the stored URL.
// It never fails: an empty rawURL gives "", and any download, decode or
// upload problem gives rawURL back unchanged.
func (s *ImageService) FromURL(ctx context.Context, rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || s.store == nil {
		return rawURL
	}

	data, err := s.download(ctx, rawURL)
	if err != nil {
		s.logger.Warn("image download failed, keeping remote url",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return rawURL
	}

	jpegData, err := imaging.Process(data)
	if err != nil {
		s.logger.Warn("remote image did not decode, keeping remote url",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return rawURL
	}

	stored, err := s.put(ctx, jpegData)
	if err != nil {
		s.logger.Warn("image upload failed, keeping remote url",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return rawURL
	}
	return stored
}

func (s *ImageService) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)
	req.Header.Set("Accept", downloadAccept)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, imaging.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(data) > imaging.MaxUploadBytes {
		return nil, fmt.Errorf("image larger than %d bytes", imaging.MaxUploadBytes)
	}
	return data, nil
}

// put is the shared tail of both entry modes.
func (s *ImageService) put(ctx context.Context, jpegData []byte) (string, error) {
	if s.store == nil {
		return "", ErrStorageUnavailable
	}
	url, err := s.store.Save(ctx, jpegData, imaging.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	s.logger.Info("image stored",
		slog.String("backend", s.store.Name()),
		slog.String("url", url),
		slog.Int("bytes", len(jpegData)),
	)
	return url, nil
}
