package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// AudioStream is a downloadable audio-only stream selected from a video's
// adaptive formats.
type AudioStream struct {
	URL      string
	MimeType string
	Bitrate  int
}

// ContentType strips codec parameters from the stream's mime type.
func (stream *AudioStream) ContentType() string {
	if idx := strings.Index(stream.MimeType, ";"); idx >= 0 {
		return strings.TrimSpace(stream.MimeType[:idx])
	}

	return stream.MimeType
}

// SelectAudioStream picks the best audio-only stream for a video: the
// highest-bitrate MP4/M4A stream when one exists, otherwise the
// highest-bitrate audio stream of any container.
func SelectAudioStream(ctx context.Context, client *http.Client, videoID string) (*AudioStream, error) {
	player, err := fetchPlayerResponse(ctx, client, videoID)
	if err != nil {
		return nil, fmt.Errorf("audio stream lookup for video %s failed: %w", videoID, err)
	}

	var audio []adaptiveFormat
	for _, format := range player.StreamingData.AdaptiveFormats {
		if format.URL != "" && strings.HasPrefix(format.MimeType, "audio/") {
			audio = append(audio, format)
		}
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio-only streams for video %s", videoID)
	}

	sort.Slice(audio, func(i, j int) bool { return audio[i].Bitrate > audio[j].Bitrate })

	selected := audio[0]
	for _, format := range audio {
		if strings.HasPrefix(format.MimeType, "audio/mp4") {
			selected = format
			break
		}
	}

	return &AudioStream{URL: selected.URL, MimeType: selected.MimeType, Bitrate: selected.Bitrate}, nil
}

// DownloadAudio fetches the selected stream's bytes. The caller is
// responsible for closing the returned reader.
func DownloadAudio(ctx context.Context, client *http.Client, stream *AudioStream) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stream.URL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", innertubeUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("audio download failed: status=%d", resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}
