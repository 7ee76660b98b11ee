package youtube

import (
	"context"
	"fmt"

	ytapi "google.golang.org/api/youtube/v3"
)

// ListVideoIDs pages through a channel's uploads (newest first) until either
// 'max' entries have been collected or the API reports no further pages.
// The publish time from the listing is authoritative for recency; callers
// merge it over the detail payload.
func (client *Client) ListVideoIDs(ctx context.Context, channelID string, max int) ([]CatalogueEntry, error) {
	entries := make([]CatalogueEntry, 0, max)
	pageToken := ""

	for len(entries) < max {
		if err := client.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := client.service.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			Order("date").
			Type("video").
			MaxResults(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("video listing for channel %s failed: %w", channelID, err)
		}

		for _, item := range response.Items {
			if item.Id == nil || item.Id.VideoId == "" {
				continue
			}

			publishedAt := ""
			if item.Snippet != nil {
				publishedAt = item.Snippet.PublishedAt
			}

			entries = append(entries, CatalogueEntry{
				VideoID:     item.Id.VideoId,
				PublishedAt: parsePublishedAt(publishedAt),
			})
			if len(entries) >= max {
				break
			}
		}

		pageToken = response.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return entries, nil
}

// FetchDetails batch-fetches statistics and metadata for the provided video
// IDs (batches of at most 50, the upstream limit). The order of the returned
// details is NOT guaranteed to match the input order; callers must re-key
// by video ID.
func (client *Client) FetchDetails(ctx context.Context, videoIDs []string) ([]VideoDetails, error) {
	details := make([]VideoDetails, 0, len(videoIDs))

	for start := 0; start < len(videoIDs); start += pageSize {
		end := start + pageSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}

		if err := client.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		response, err := client.service.Videos.List([]string{"snippet", "statistics"}).
			Id(videoIDs[start:end]...).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("video details fetch failed: %w", err)
		}

		for _, item := range response.Items {
			if item.Id == "" || item.Snippet == nil {
				continue
			}

			detail := VideoDetails{
				VideoID:      item.Id,
				Title:        item.Snippet.Title,
				ThumbnailURL: bestThumbnail(item.Snippet.Thumbnails),
				PublishedAt:  parsePublishedAt(item.Snippet.PublishedAt),
			}
			if item.Statistics != nil {
				detail.Views = int64(item.Statistics.ViewCount)
				detail.Likes = int64(item.Statistics.LikeCount)
				detail.Comments = int64(item.Statistics.CommentCount)
			}

			details = append(details, detail)
		}
	}

	return details, nil
}

// bestThumbnail walks the fixed resolution ladder, preferring the highest
// available resolution and returning an empty URL when the snippet carries
// no thumbnails at all.
func bestThumbnail(thumbs *ytapi.ThumbnailDetails) string {
	if thumbs == nil {
		return ""
	}

	for _, candidate := range []*ytapi.Thumbnail{thumbs.Maxres, thumbs.Standard, thumbs.High, thumbs.Medium, thumbs.Default} {
		if candidate != nil && candidate.Url != "" {
			return candidate.Url
		}
	}

	return ""
}
