package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"

	"movie-catalog/internal/config"
	"movie-catalog/internal/models"
)

type thumbUploader interface {
	Upload(ctx context.Context, key string, body []byte) (string, error)
}

// PosterHandler processes poster:thumbnail jobs: it downloads a movie's
// poster, scales it to the configured width, and stores the thumbnail on
// local disk or S3. Thumbnails are enrichment only; the movie record is
// never touched here.
type PosterHandler struct {
	cfg        config.Config
	httpClient *http.Client
	uploader   thumbUploader
}

type posterJobPayload struct {
	ExternalID int64  `json:"externalId"`
	SourceURL  string `json:"sourceUrl"`
}

// NewPosterHandler constructs the handler, choosing S3 when a bucket is
// configured and local disk otherwise.
func NewPosterHandler(ctx context.Context, cfg config.Config) (*PosterHandler, error) {
	timeout := cfg.PosterDownloadTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var uploader thumbUploader
	if cfg.PosterS3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.PosterS3Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		uploader = &s3ThumbUploader{client: s3.NewFromConfig(awsCfg), bucket: cfg.PosterS3Bucket}
	} else {
		baseDir := cfg.PosterOutputDir
		if baseDir == "" {
			baseDir = "./posters"
		}
		uploader = &localThumbUploader{baseDir: baseDir}
	}

	return &PosterHandler{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		uploader:   uploader,
	}, nil
}

// Handle downloads, resizes, and stores one poster thumbnail.
func (h *PosterHandler) Handle(ctx context.Context, job models.Job) error {
	var payload posterJobPayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.SourceURL == "" {
		return errors.New("sourceUrl is required")
	}
	if payload.ExternalID <= 0 {
		return errors.New("externalId is required")
	}

	data, err := h.download(ctx, payload.SourceURL)
	if err != nil {
		return err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode poster: %w", err)
	}

	width := h.cfg.PosterThumbWidth
	if width == 0 {
		width = 300
	}
	// Height 0 preserves aspect ratio.
	img = imaging.Resize(img, width, 0, imaging.Lanczos)

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}

	key := fmt.Sprintf("thumbs/%d.jpg", payload.ExternalID)
	if _, err := h.uploader.Upload(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	return nil
}

func (h *PosterHandler) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download poster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download poster: status %d", resp.StatusCode)
	}

	limit := h.cfg.PosterMaxBytes
	if limit == 0 {
		limit = 5 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read poster: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("poster too large (>%d bytes)", limit)
	}
	return body, nil
}

type localThumbUploader struct {
	baseDir string
}

func (l *localThumbUploader) Upload(_ context.Context, key string, body []byte) (string, error) {
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3ThumbUploader struct {
	client *s3.Client
	bucket string
}

func (s *s3ThumbUploader) Upload(ctx context.Context, key string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
