package youtube

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tubelens/tubelens/pkg/logger"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

var log = logger.Get("YouTube")

const (
	// pageSize is the maximum number of results the Data API returns
	// per search page, and also the maximum batch size for videos.list.
	pageSize = 50

	watchURLTemplate = "https://www.youtube.com/watch?v=%s"
)

type (
	Config struct {
		ApiKey string `yaml:"api_key" env:"YOUTUBE_API_KEY" env-required:"true"`
	}

	// ResolvedChannel is the outcome of channel resolution; the ID is the
	// canonical opaque channel identifier ("UC..." form).
	ResolvedChannel struct {
		ID    string
		Title string
	}

	// CatalogueEntry is a single listing result for a channel; only the
	// identifier and the listing-authoritative publish time are known
	// at this stage.
	CatalogueEntry struct {
		VideoID     string
		PublishedAt time.Time
	}

	// VideoDetails carries the per-video statistics and metadata from a
	// videos.list batch. Stats missing upstream (e.g. hidden like counts)
	// are zero.
	VideoDetails struct {
		VideoID      string
		Title        string
		Views        int64
		Likes        int64
		Comments     int64
		ThumbnailURL string
		PublishedAt  time.Time
	}

	// Client wraps the official YouTube Data API service with the small
	// surface the scrape pipeline needs. All calls pass through a shared
	// rate limiter to keep bursts within quota.
	Client struct {
		service *ytapi.Service
		limiter *rate.Limiter
	}
)

// NewClient constructs the Data API service using the provided API key.
// Additional client options may be supplied to redirect the service at a
// different endpoint or transport (used by tests).
func NewClient(ctx context.Context, config Config, extraOpts ...option.ClientOption) (*Client, error) {
	if config.ApiKey == "" {
		return nil, fmt.Errorf("youtube API key is required")
	}

	opts := append([]option.ClientOption{
		option.WithAPIKey(config.ApiKey),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}, extraOpts...)

	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	return &Client{
		service: service,
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}, nil
}

// WatchURL returns the canonical watch page URL for a video ID.
func WatchURL(videoID string) string {
	return fmt.Sprintf(watchURLTemplate, videoID)
}

func parsePublishedAt(raw string) time.Time {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed
	}

	return time.Now().UTC()
}
