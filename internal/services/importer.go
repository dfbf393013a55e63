package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	appconfig "squadup-backend/internal/config"
	"squadup-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	importFetchTimeout = 10 * time.Second
	maxImportBodySize  = 2 << 20  // 2 MB of HTML is plenty for meta tags
	maxImageSize       = 10 << 20 // 10 MB
)

// ImporterService turns a URL into a stored event descriptor: it scrapes
// OpenGraph metadata from the page and mirrors the cover image into S3 so
// the event keeps working after the source page changes. The squad core only
// ever consumes the resulting event id.
type ImporterService struct {
	eventRepo EventStore
	http      *http.Client
	s3Client  *s3.Client
	s3Bucket  string
	s3Region  string
}

// NewImporterService creates a new importer service
func NewImporterService(eventRepo EventStore, cfg appconfig.AWSConfig) (*ImporterService, error) {
	svc := &ImporterService{
		eventRepo: eventRepo,
		http:      &http.Client{Timeout: importFetchTimeout},
		s3Bucket:  cfg.S3Bucket,
		s3Region:  cfg.Region,
	}

	if cfg.S3Bucket != "" {
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		svc.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
	}

	return svc, nil
}

// ImportEvent fetches the page at url, extracts the event descriptor and
// stores it. The image mirror is best-effort: a failed upload keeps the
// original image URL.
func (s *ImporterService) ImportEvent(ctx context.Context, url string) (*models.Event, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid event url")
	}

	meta, err := s.fetchMeta(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to import event: %w", err)
	}
	if meta.title == "" {
		return nil, fmt.Errorf("page at %s has no usable title", url)
	}

	event := &models.Event{
		ID:        uuid.New().String(),
		Title:     meta.title,
		SourceURL: url,
		CreatedAt: time.Now(),
	}
	if meta.venue != "" {
		event.Venue = &meta.venue
	}
	if meta.date != "" {
		event.EventDate = &meta.date
	}
	if meta.startTime != "" {
		event.EventTime = &meta.startTime
	}
	if meta.image != "" {
		mirrored := s.mirrorImage(ctx, event.ID, meta.image)
		event.ImageURL = &mirrored
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, err
	}

	log.Info().Str("event_id", event.ID).Str("url", url).Str("title", event.Title).Msg("Event imported")
	return event, nil
}

type pageMeta struct {
	title     string
	image     string
	venue     string
	date      string
	startTime string
}

var (
	metaTagRe = regexp.MustCompile(`<meta[^>]+>`)
	attrRe    = regexp.MustCompile(`(property|name|content)\s*=\s*"([^"]*)"`)
	titleRe   = regexp.MustCompile(`<title[^>]*>([^<]+)</title>`)
	isoDateRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})(?:T(\d{2}:\d{2}))?`)
)

// fetchMeta pulls the OpenGraph-ish metadata out of the page. Event sites
// vary wildly; this only trusts well-formed meta tags and falls back to the
// <title> element.
func (s *ImporterService) fetchMeta(ctx context.Context, url string) (*pageMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "squadup-bot/1.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImportBodySize))
	if err != nil {
		return nil, err
	}
	html := string(body)

	meta := &pageMeta{}
	for _, tag := range metaTagRe.FindAllString(html, -1) {
		var prop, content string
		for _, m := range attrRe.FindAllStringSubmatch(tag, -1) {
			switch m[1] {
			case "property", "name":
				prop = m[2]
			case "content":
				content = m[2]
			}
		}
		if content == "" {
			continue
		}
		switch prop {
		case "og:title", "twitter:title":
			if meta.title == "" {
				meta.title = content
			}
		case "og:image", "twitter:image":
			if meta.image == "" {
				meta.image = content
			}
		case "og:site_name", "event:location", "og:locality":
			if meta.venue == "" {
				meta.venue = content
			}
		case "event:start_time", "og:start_time":
			if m := isoDateRe.FindStringSubmatch(content); m != nil {
				meta.date = m[1]
				meta.startTime = m[2]
			}
		}
	}

	if meta.title == "" {
		if m := titleRe.FindStringSubmatch(html); m != nil {
			meta.title = strings.TrimSpace(m[1])
		}
	}
	return meta, nil
}

// mirrorImage copies the event image into S3 and returns the mirrored URL,
// or the original URL when mirroring is disabled or fails.
func (s *ImporterService) mirrorImage(ctx context.Context, eventID, imageURL string) string {
	if s.s3Client == nil {
		return imageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return imageURL
	}
	resp, err := s.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("image_url", imageURL).Msg("Failed to fetch event image")
		return imageURL
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return imageURL
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return imageURL
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := fmt.Sprintf("events/%s/cover.jpg", eventID)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.s3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to mirror event image to S3")
		return imageURL
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.s3Bucket, s.s3Region, key)
}

// GetEvent retrieves an imported event by id.
func (s *ImporterService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return s.eventRepo.GetByID(ctx, eventID)
}
