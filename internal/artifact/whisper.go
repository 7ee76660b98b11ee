package artifact

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tubelens/tubelens/pkg/logger"
)

// WhisperConfig controls the speech-to-text fallback used when a video
// carries no caption tracks at all.
type WhisperConfig struct {
	Enabled bool   `yaml:"enabled" env:"WHISPER_ENABLED" env-default:"false"`
	ApiKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string `yaml:"model" env:"WHISPER_MODEL" env-default:"whisper-1"`
}

// WhisperTranscriber transcribes a video's audio track when no captions are
// available. A nil transcriber is valid and always unavailable.
type WhisperTranscriber struct {
	client     openai.Client
	httpClient *http.Client
	model      string
}

// NewWhisperTranscriber returns nil when the fallback is disabled or not
// configured with an API key.
func NewWhisperTranscriber(config WhisperConfig, httpClient *http.Client) *WhisperTranscriber {
	if !config.Enabled || config.ApiKey == "" {
		return nil
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute * 2}
	}

	return &WhisperTranscriber{
		client:     openai.NewClient(option.WithAPIKey(config.ApiKey)),
		httpClient: httpClient,
		model:      config.Model,
	}
}

// Available reports whether the fallback can be used.
func (transcriber *WhisperTranscriber) Available() bool { return transcriber != nil }

// Transcribe downloads the lowest-bitrate audio-only stream for the video
// (smallest upload, sufficient for speech) and runs it through the configured
// speech-to-text model.
func (transcriber *WhisperTranscriber) Transcribe(ctx context.Context, videoID string) (string, error) {
	if !transcriber.Available() {
		return "", fmt.Errorf("speech-to-text fallback is not configured")
	}

	stream, err := selectSmallestAudioStream(ctx, transcriber.httpClient, videoID)
	if err != nil {
		return "", err
	}

	body, _, err := DownloadAudio(ctx, transcriber.httpClient, stream)
	if err != nil {
		return "", err
	}
	defer body.Close()

	log.Emit(logger.DEBUG, "Running speech-to-text fallback for video %s (%s @ %dbps)\n", videoID, stream.ContentType(), stream.Bitrate)
	transcription, err := transcriber.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(transcriber.model),
		File:  openai.File(body, fmt.Sprintf("%s.m4a", videoID), stream.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("speech-to-text transcription for video %s failed: %w", videoID, err)
	}

	return CleanTranscript(transcription.Text), nil
}

func selectSmallestAudioStream(ctx context.Context, client *http.Client, videoID string) (*AudioStream, error) {
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

	sort.Slice(audio, func(i, j int) bool { return audio[i].Bitrate < audio[j].Bitrate })
	selected := audio[0]

	return &AudioStream{URL: selected.URL, MimeType: selected.MimeType, Bitrate: selected.Bitrate}, nil
}
