package artifact

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tubelens/tubelens/internal/storage"
	"github.com/tubelens/tubelens/pkg/logger"
)

// Materializer produces the durable artifacts for a scraped video: its
// transcript text, a re-hosted thumbnail, a transcript blob, and an audio
// blob. Every method degrades to a safe default rather than failing the
// caller; artifact trouble must never stop a scrape run.
type Materializer struct {
	httpClient  *http.Client
	blobs       *storage.BlobStore
	transcriber *WhisperTranscriber
}

func NewMaterializer(blobs *storage.BlobStore, transcriber *WhisperTranscriber) *Materializer {
	return &Materializer{
		httpClient:  &http.Client{Timeout: time.Minute * 2},
		blobs:       blobs,
		transcriber: transcriber,
	}
}

// Transcript fetches caption text for the video, falling back to
// speech-to-text when enabled and no captions exist. Returns "" when neither
// source yields anything.
func (materializer *Materializer) Transcript(ctx context.Context, videoID string) string {
	text, err := FetchTranscript(ctx, materializer.httpClient, videoID)
	if err == nil && text != "" {
		return text
	}

	if materializer.transcriber.Available() {
		text, err = materializer.transcriber.Transcribe(ctx, videoID)
		if err == nil {
			return text
		}

		log.Emit(logger.WARNING, "Speech-to-text fallback for video %s failed: %v\n", videoID, err)
	}

	return ""
}

// Thumbnail downloads the video's thumbnail and re-hosts it in blob storage,
// returning the public URL. On any failure (or when storage is unavailable)
// the original upstream URL is returned unchanged.
func (materializer *Materializer) Thumbnail(ctx context.Context, videoID string, sourceURL string) string {
	if sourceURL == "" || !materializer.blobs.Available() {
		return sourceURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return sourceURL
	}

	resp, err := materializer.httpClient.Do(req)
	if err != nil {
		log.Emit(logger.WARNING, "Thumbnail download for video %s failed: %v\n", videoID, err)
		return sourceURL
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Emit(logger.WARNING, "Thumbnail download for video %s failed: status=%d\n", videoID, resp.StatusCode)
		return sourceURL
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	url, err := materializer.blobs.Upload(ctx, fmt.Sprintf("thumbnails/%s.jpg", videoID), contentType, resp.Body, resp.ContentLength)
	if err != nil {
		log.Emit(logger.WARNING, "Thumbnail upload for video %s failed: %v\n", videoID, err)
		return sourceURL
	}

	return url
}

// TranscriptBlob uploads the transcript text as a plain-text object and
// returns its public URL. Returns nil when the transcript is empty, storage
// is unavailable, or the upload fails.
func (materializer *Materializer) TranscriptBlob(ctx context.Context, videoID string, transcript string) *string {
	if transcript == "" || !materializer.blobs.Available() {
		return nil
	}

	reader := strings.NewReader(transcript)
	url, err := materializer.blobs.Upload(ctx, fmt.Sprintf("transcripts/%s.txt", videoID), "text/plain; charset=utf-8", reader, int64(reader.Len()))
	if err != nil {
		log.Emit(logger.WARNING, "Transcript upload for video %s failed: %v\n", videoID, err)
		return nil
	}

	return &url
}

// Audio selects the video's best audio-only stream, downloads it, and
// re-hosts it in blob storage. Returns nil when storage is unavailable or
// any step fails.
func (materializer *Materializer) Audio(ctx context.Context, videoID string) *string {
	if !materializer.blobs.Available() {
		return nil
	}

	stream, err := SelectAudioStream(ctx, materializer.httpClient, videoID)
	if err != nil {
		log.Emit(logger.WARNING, "Audio stream selection for video %s failed: %v\n", videoID, err)
		return nil
	}

	body, size, err := DownloadAudio(ctx, materializer.httpClient, stream)
	if err != nil {
		log.Emit(logger.WARNING, "Audio download for video %s failed: %v\n", videoID, err)
		return nil
	}
	defer body.Close()

	url, err := materializer.blobs.Upload(ctx, fmt.Sprintf("audio/%s.m4a", videoID), stream.ContentType(), body, size)
	if err != nil {
		log.Emit(logger.WARNING, "Audio upload for video %s failed: %v\n", videoID, err)
		return nil
	}

	return &url
}
