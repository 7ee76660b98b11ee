package scrape_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/go-chanassert"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tubelens/tubelens/internal/database"
	"github.com/tubelens/tubelens/internal/event"
	"github.com/tubelens/tubelens/internal/run"
	"github.com/tubelens/tubelens/internal/scrape"
	"github.com/tubelens/tubelens/internal/youtube"
	"github.com/tubelens/tubelens/pkg/logger"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type stubManager struct{}

func (stub *stubManager) Connect(database.DatabaseConfig) error { return nil }
func (stub *stubManager) GetSqlxDb() *sqlx.DB                   { return nil }
func (stub *stubManager) WrapTx(func(*sqlx.Tx) error) error     { return errors.New("not supported") }

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Resolve(ctx context.Context, input string) (*youtube.ResolvedChannel, error) {
	args := m.Called(input)
	if v, ok := args.Get(0).(*youtube.ResolvedChannel); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) ListVideoIDs(ctx context.Context, channelID string, max int) ([]youtube.CatalogueEntry, error) {
	args := m.Called(channelID, max)
	if v, ok := args.Get(0).([]youtube.CatalogueEntry); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) FetchDetails(ctx context.Context, videoIDs []string) ([]youtube.VideoDetails, error) {
	args := m.Called(videoIDs)
	if v, ok := args.Get(0).([]youtube.VideoDetails); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockArtifacts struct {
	mock.Mock
}

func (m *mockArtifacts) Transcript(ctx context.Context, videoID string) string {
	return m.Called(videoID).String(0)
}

func (m *mockArtifacts) Thumbnail(ctx context.Context, videoID string, sourceURL string) string {
	return m.Called(videoID, sourceURL).String(0)
}

func (m *mockArtifacts) TranscriptBlob(ctx context.Context, videoID string, transcript string) *string {
	args := m.Called(videoID, transcript)
	if v, ok := args.Get(0).(*string); ok {
		return v
	}
	return nil
}

func (m *mockArtifacts) Audio(ctx context.Context, videoID string) *string {
	args := m.Called(videoID)
	if v, ok := args.Get(0).(*string); ok {
		return v
	}
	return nil
}

type mockStore struct {
	mock.Mock

	inserted []*run.VideoRow
}

func (m *mockStore) CreateRun(db database.Queryable, id uuid.UUID, query string, channelID string) (*run.Run, error) {
	args := m.Called(query, channelID)
	if v, ok := args.Get(0).(*run.Run); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) SetRunStatus(db database.Queryable, id uuid.UUID, status run.Status) error {
	return m.Called(id, status).Error(0)
}

func (m *mockStore) InsertVideoRow(db database.Queryable, row *run.VideoRow) error {
	m.inserted = append(m.inserted, row)
	return m.Called(row.VideoID).Error(0)
}

func (m *mockStore) LatestRowForVideo(db database.Queryable, videoID string) (*run.VideoRow, error) {
	args := m.Called(videoID)
	if v, ok := args.Get(0).(*run.VideoRow); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func collectEvents(t *testing.T, events <-chan scrape.ProgressEvent) []scrape.ProgressEvent {
	t.Helper()

	collected := make([]scrape.ProgressEvent, 0)
	timeout := time.After(time.Second * 5)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for progress stream to close, received so far: %v", collected)
			return nil
		}
	}
}

func strPtr(s string) *string { return &s }

func TestScrape_EmitsOrderedProgressAndPersistsSortedRows(t *testing.T) {
	runID := uuid.New()
	source := new(mockSource)
	artifacts := new(mockArtifacts)
	store := new(mockStore)
	eventBus := event.New()

	listedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	source.On("Resolve", "@exampleChannel").Return(&youtube.ResolvedChannel{ID: "UC123", Title: "Example"}, nil)
	source.On("ListVideoIDs", "UC123", 2).Return([]youtube.CatalogueEntry{
		{VideoID: "vidNew", PublishedAt: listedAt},
		{VideoID: "vidOld", PublishedAt: listedAt.Add(-time.Hour)},
	}, nil)
	// Details arrive out of listing order and the older video has more views,
	// so it must be persisted first.
	source.On("FetchDetails", []string{"vidNew", "vidOld"}).Return([]youtube.VideoDetails{
		{VideoID: "vidNew", Title: "New Video", Views: 10, ThumbnailURL: "http://thumb/new"},
		{VideoID: "vidOld", Title: "Old Video", Views: 500, ThumbnailURL: "http://thumb/old"},
	}, nil)

	store.On("CreateRun", "@exampleChannel", "UC123").Return(&run.Run{ID: runID, Query: "@exampleChannel", ChannelID: "UC123", Status: run.StatusRunning}, nil)
	store.On("LatestRowForVideo", mock.Anything).Return(nil, nil)
	store.On("InsertVideoRow", mock.Anything).Return(nil)
	store.On("SetRunStatus", runID, run.StatusCompleted).Return(nil)

	artifacts.On("Transcript", mock.Anything).Return("a transcript")
	artifacts.On("Thumbnail", mock.Anything, mock.Anything).Return("http://blobs/thumb")
	artifacts.On("TranscriptBlob", mock.Anything, "a transcript").Return(strPtr("http://blobs/transcript"))
	artifacts.On("Audio", mock.Anything).Return(strPtr("http://blobs/audio"))

	busChan := make(chan event.HandlerEvent, 10)
	eventBus.RegisterHandlerChannel(busChan, event.RunUpdateEvent, event.RunCompleteEvent)
	expecter := chanassert.NewChannelExpecter(busChan).Expect(chanassert.AllOf(
		chanassert.MatchPredicate(func(ev event.HandlerEvent) bool { return ev.Event == event.RunUpdateEvent }),
		chanassert.MatchPredicate(func(ev event.HandlerEvent) bool { return ev.Event == event.RunCompleteEvent }),
	))
	expecter.Listen()

	service := scrape.New(&stubManager{}, store, source, artifacts, eventBus)
	events := collectEvents(t, service.Scrape(context.Background(), "@exampleChannel", 2))

	assert.Equal(t, []scrape.ProgressEvent{
		{Type: scrape.EventInfo, Message: "Resolving channel..."},
		{Type: scrape.EventInfo, Message: "Channel: Example (UC123)"},
		{Type: scrape.EventInfo, Message: "Fetching latest 2 videos..."},
		{Type: scrape.EventInfo, Message: "Fetching transcripts, downloading audio, and saving..."},
		{Type: scrape.EventProgress, Current: 1, Total: 2},
		{Type: scrape.EventProgress, Current: 2, Total: 2},
		{Type: scrape.EventDone, RunID: runID.String()},
	}, events)

	// Rows persisted by view count descending, with the listing publish time
	// merged over the detail payload.
	assert.Len(t, store.inserted, 2)
	assert.Equal(t, "vidOld", store.inserted[0].VideoID)
	assert.Equal(t, "vidNew", store.inserted[1].VideoID)
	assert.Equal(t, int64(500), store.inserted[0].Views)
	assert.Equal(t, runID, store.inserted[0].RunID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vidOld", store.inserted[0].VideoURL)
	assert.NotNil(t, store.inserted[1].PublishedAt)
	assert.Equal(t, listedAt, *store.inserted[1].PublishedAt)

	expecter.AssertSatisfied(t, time.Second*2)
}

func TestScrape_ResolutionFailureEmitsErrorWithoutRun(t *testing.T) {
	source := new(mockSource)
	store := new(mockStore)
	source.On("Resolve", "does not exist").Return(nil, errors.New("no channel could be resolved for input"))

	service := scrape.New(&stubManager{}, store, source, new(mockArtifacts), event.New())
	events := collectEvents(t, service.Scrape(context.Background(), "does not exist", 10))

	assert.Equal(t, []scrape.ProgressEvent{
		{Type: scrape.EventInfo, Message: "Resolving channel..."},
		{Type: scrape.EventError, Message: "no channel could be resolved for input"},
	}, events)
	store.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}

func TestScrape_CatalogueFailureLeavesRunNonTerminal(t *testing.T) {
	runID := uuid.New()
	source := new(mockSource)
	store := new(mockStore)
	eventBus := event.New()

	source.On("Resolve", "@someone").Return(&youtube.ResolvedChannel{ID: "UC1", Title: "Someone"}, nil)
	source.On("ListVideoIDs", "UC1", 100).Return(nil, errors.New("upstream listing failed"))
	store.On("CreateRun", "@someone", "UC1").Return(&run.Run{ID: runID, Status: run.StatusRunning}, nil)

	busChan := make(chan event.HandlerEvent, 10)
	eventBus.RegisterHandlerChannel(busChan, event.RunFailedEvent)
	expecter := chanassert.NewChannelExpecter(busChan).Expect(chanassert.AllOf(
		chanassert.MatchPredicate(func(ev event.HandlerEvent) bool { return ev.Event == event.RunFailedEvent }),
	))
	expecter.Listen()

	service := scrape.New(&stubManager{}, store, source, new(mockArtifacts), eventBus)
	events := collectEvents(t, service.Scrape(context.Background(), "@someone", 0))

	assert.Equal(t, scrape.ProgressEvent{Type: scrape.EventError, Message: "upstream listing failed"}, events[len(events)-1])
	store.AssertNotCalled(t, "SetRunStatus", mock.Anything, mock.Anything)
	expecter.AssertSatisfied(t, time.Second*2)
}

func TestScrape_ArtifactFailuresDegradeToSafeDefaults(t *testing.T) {
	runID := uuid.New()
	source := new(mockSource)
	artifacts := new(mockArtifacts)
	store := new(mockStore)

	source.On("Resolve", "@someone").Return(&youtube.ResolvedChannel{ID: "UC1", Title: "Someone"}, nil)
	source.On("ListVideoIDs", "UC1", 1).Return([]youtube.CatalogueEntry{{VideoID: "vid1"}}, nil)
	source.On("FetchDetails", []string{"vid1"}).Return([]youtube.VideoDetails{
		{VideoID: "vid1", Title: "A Video", Views: 3, ThumbnailURL: "http://thumb/original"},
	}, nil)

	store.On("CreateRun", "@someone", "UC1").Return(&run.Run{ID: runID, Status: run.StatusRunning}, nil)
	store.On("LatestRowForVideo", "vid1").Return(nil, nil)
	store.On("InsertVideoRow", "vid1").Return(nil)
	store.On("SetRunStatus", runID, run.StatusCompleted).Return(nil)

	// Every materialization step fails to its safe default.
	artifacts.On("Transcript", "vid1").Return("")
	artifacts.On("Thumbnail", "vid1", "http://thumb/original").Return("http://thumb/original")
	artifacts.On("TranscriptBlob", "vid1", "").Return(nil)
	artifacts.On("Audio", "vid1").Return(nil)

	service := scrape.New(&stubManager{}, store, source, artifacts, event.New())
	events := collectEvents(t, service.Scrape(context.Background(), "@someone", 1))

	assert.Equal(t, scrape.EventDone, events[len(events)-1].Type, "run must still complete when artifacts fail")
	assert.Len(t, store.inserted, 1)
	row := store.inserted[0]
	assert.Equal(t, "", *row.Transcript)
	assert.Nil(t, row.TranscriptURL)
	assert.Nil(t, row.AudioURL)
	assert.Equal(t, "http://thumb/original", row.ThumbnailURL)
}

func TestScrape_PriorTranscriptReusesArtifactsWithFreshStats(t *testing.T) {
	runID := uuid.New()
	source := new(mockSource)
	artifacts := new(mockArtifacts)
	store := new(mockStore)

	source.On("Resolve", "@someone").Return(&youtube.ResolvedChannel{ID: "UC1", Title: "Someone"}, nil)
	source.On("ListVideoIDs", "UC1", 1).Return([]youtube.CatalogueEntry{{VideoID: "vid1"}}, nil)
	source.On("FetchDetails", []string{"vid1"}).Return([]youtube.VideoDetails{
		{VideoID: "vid1", Title: "Fresh Title", Views: 999, Likes: 5, ThumbnailURL: "http://thumb/fresh"},
	}, nil)

	priorPublished := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	store.On("CreateRun", "@someone", "UC1").Return(&run.Run{ID: runID, Status: run.StatusRunning}, nil)
	store.On("LatestRowForVideo", "vid1").Return(&run.VideoRow{
		VideoID:       "vid1",
		VideoURL:      "https://www.youtube.com/watch?v=vid1",
		Title:         "Prior Title",
		Views:         1,
		ThumbnailURL:  "http://blobs/prior-thumb",
		Transcript:    strPtr("prior transcript"),
		TranscriptURL: strPtr("http://blobs/prior-transcript"),
		AudioURL:      strPtr("http://blobs/prior-audio"),
		PublishedAt:   &priorPublished,
	}, nil)
	store.On("InsertVideoRow", "vid1").Return(nil)
	store.On("SetRunStatus", runID, run.StatusCompleted).Return(nil)

	service := scrape.New(&stubManager{}, store, source, artifacts, event.New())
	events := collectEvents(t, service.Scrape(context.Background(), "@someone", 1))

	assert.Equal(t, scrape.EventDone, events[len(events)-1].Type)
	assert.Len(t, store.inserted, 1)
	row := store.inserted[0]
	assert.Equal(t, "Prior Title", row.Title)
	assert.Equal(t, "http://blobs/prior-thumb", row.ThumbnailURL)
	assert.Equal(t, "prior transcript", *row.Transcript)
	assert.Equal(t, "http://blobs/prior-transcript", *row.TranscriptURL)
	assert.Equal(t, "http://blobs/prior-audio", *row.AudioURL)
	assert.Equal(t, priorPublished, *row.PublishedAt)
	assert.Equal(t, int64(999), row.Views, "stats must be refreshed even when artifacts are reused")
	assert.Equal(t, int64(5), row.Likes)

	artifacts.AssertNotCalled(t, "Transcript", mock.Anything)
	artifacts.AssertNotCalled(t, "Thumbnail", mock.Anything, mock.Anything)
	artifacts.AssertNotCalled(t, "Audio", mock.Anything)
}

func TestScrape_PriorAudioReusedIndependentlyOfTranscript(t *testing.T) {
	runID := uuid.New()
	source := new(mockSource)
	artifacts := new(mockArtifacts)
	store := new(mockStore)

	source.On("Resolve", "@someone").Return(&youtube.ResolvedChannel{ID: "UC1", Title: "Someone"}, nil)
	source.On("ListVideoIDs", "UC1", 1).Return([]youtube.CatalogueEntry{{VideoID: "vid1"}}, nil)
	source.On("FetchDetails", []string{"vid1"}).Return([]youtube.VideoDetails{
		{VideoID: "vid1", Title: "A Video", Views: 3, ThumbnailURL: "http://thumb/original"},
	}, nil)

	// Prior row has audio, but its transcript is empty so all other artifact
	// work must be redone.
	store.On("CreateRun", "@someone", "UC1").Return(&run.Run{ID: runID, Status: run.StatusRunning}, nil)
	store.On("LatestRowForVideo", "vid1").Return(&run.VideoRow{
		VideoID:  "vid1",
		Title:    "Prior Title",
		AudioURL: strPtr("http://blobs/prior-audio"),
	}, nil)
	store.On("InsertVideoRow", "vid1").Return(nil)
	store.On("SetRunStatus", runID, run.StatusCompleted).Return(nil)

	artifacts.On("Transcript", "vid1").Return("fresh transcript")
	artifacts.On("Thumbnail", "vid1", "http://thumb/original").Return("http://blobs/fresh-thumb")
	artifacts.On("TranscriptBlob", "vid1", "fresh transcript").Return(strPtr("http://blobs/fresh-transcript"))

	service := scrape.New(&stubManager{}, store, source, artifacts, event.New())
	events := collectEvents(t, service.Scrape(context.Background(), "@someone", 1))

	assert.Equal(t, scrape.EventDone, events[len(events)-1].Type)
	row := store.inserted[0]
	assert.Equal(t, "fresh transcript", *row.Transcript)
	assert.Equal(t, "http://blobs/fresh-thumb", row.ThumbnailURL)
	assert.Equal(t, "http://blobs/prior-audio", *row.AudioURL)
	artifacts.AssertNotCalled(t, "Audio", mock.Anything)
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero takes default", 0, 100},
		{"negative clamps to minimum", -5, 1},
		{"above maximum clamps", 250, 100},
		{"minimum respected", 1, 1},
		{"in range untouched", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scrape.ClampLimit(tt.in))
		})
	}
}
