package scrape

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tubelens/tubelens/internal/database"
	"github.com/tubelens/tubelens/internal/event"
	"github.com/tubelens/tubelens/internal/run"
	"github.com/tubelens/tubelens/internal/youtube"
	"github.com/tubelens/tubelens/pkg/logger"
)

var log = logger.Get("Scrape")

const (
	defaultVideoLimit = 100
	maxVideoLimit     = 100
)

type (
	// VideoSource resolves channels and lists their catalogue.
	VideoSource interface {
		Resolve(ctx context.Context, input string) (*youtube.ResolvedChannel, error)
		ListVideoIDs(ctx context.Context, channelID string, max int) ([]youtube.CatalogueEntry, error)
		FetchDetails(ctx context.Context, videoIDs []string) ([]youtube.VideoDetails, error)
	}

	// ArtifactMaterializer produces per-video artifacts. Implementations
	// must degrade to safe defaults rather than returning errors; artifact
	// trouble never fails a run.
	ArtifactMaterializer interface {
		Transcript(ctx context.Context, videoID string) string
		Thumbnail(ctx context.Context, videoID string, sourceURL string) string
		TranscriptBlob(ctx context.Context, videoID string, transcript string) *string
		Audio(ctx context.Context, videoID string) *string
	}

	// RunStore is the subset of the run store the orchestrator needs.
	RunStore interface {
		CreateRun(db database.Queryable, id uuid.UUID, query string, channelID string) (*run.Run, error)
		SetRunStatus(db database.Queryable, id uuid.UUID, status run.Status) error
		InsertVideoRow(db database.Queryable, row *run.VideoRow) error
		LatestRowForVideo(db database.Queryable, videoID string) (*run.VideoRow, error)
	}

	// Service orchestrates scrape runs. Each run executes sequentially in
	// its own goroutine: resolve the channel, create the run record, walk
	// the catalogue newest-first, reconcile each video against prior rows,
	// and persist one new row per video under the run.
	Service struct {
		db        database.Manager
		store     RunStore
		source    VideoSource
		artifacts ArtifactMaterializer
		eventBus  event.EventDispatcher
	}
)

func New(db database.Manager, store RunStore, source VideoSource, artifacts ArtifactMaterializer, eventBus event.EventDispatcher) *Service {
	return &Service{
		db:        db,
		store:     store,
		source:    source,
		artifacts: artifacts,
		eventBus:  eventBus,
	}
}

// ClampLimit normalizes a requested video limit to the accepted range. Zero
// takes the default; anything else is clamped to [1, maxVideoLimit].
func ClampLimit(limit int) int {
	if limit == 0 {
		limit = defaultVideoLimit
	}
	if limit > maxVideoLimit {
		limit = maxVideoLimit
	}
	if limit < 1 {
		limit = 1
	}

	return limit
}

// Scrape starts a run for the given input and returns its ordered progress
// stream. The stream carries exactly one terminal frame (done or error) and
// is closed afterwards. The caller disconnecting does not halt the run.
func (service *Service) Scrape(ctx context.Context, input string, limit int) <-chan ProgressEvent {
	emitter := newProgressEmitter()
	go service.execute(ctx, emitter, input, ClampLimit(limit))

	return emitter.Events()
}

func (service *Service) execute(ctx context.Context, emitter *progressEmitter, input string, limit int) {
	emitter.Info("Resolving channel...")
	channel, err := service.source.Resolve(ctx, input)
	if err != nil {
		log.Emit(logger.ERROR, "Channel resolution for input %q failed: %v\n", input, err)
		emitter.Fail(err.Error())
		return
	}

	db := service.db.GetSqlxDb()
	scrapeRun, err := service.store.CreateRun(db, uuid.New(), input, channel.ID)
	if err != nil {
		log.Emit(logger.ERROR, "Run creation for channel %s failed: %v\n", channel.ID, err)
		emitter.Fail(err.Error())
		return
	}

	emitter.Info(fmt.Sprintf("Channel: %s (%s)", channel.Title, channel.ID))
	service.eventBus.Dispatch(event.RunUpdateEvent, scrapeRun.ID)

	emitter.Info(fmt.Sprintf("Fetching latest %d videos...", limit))
	videos, err := service.fetchCatalogue(ctx, channel.ID, limit)
	if err != nil {
		log.Emit(logger.ERROR, "Catalogue fetch for channel %s failed: %v\n", channel.ID, err)
		emitter.Fail(err.Error())
		service.eventBus.Dispatch(event.RunFailedEvent, scrapeRun.ID)
		return
	}

	emitter.Info("Fetching transcripts, downloading audio, and saving...")
	total := len(videos)
	for idx, video := range videos {
		emitter.Progress(idx+1, total)

		row, err := service.reconcileVideo(ctx, scrapeRun.ID, &video)
		if err != nil {
			log.Emit(logger.ERROR, "Reconciliation of video %s in run %s failed: %v\n", video.VideoID, scrapeRun.ID, err)
			emitter.Fail(err.Error())
			service.eventBus.Dispatch(event.RunFailedEvent, scrapeRun.ID)
			return
		}

		if err := service.store.InsertVideoRow(db, row); err != nil {
			log.Emit(logger.ERROR, "Row insertion for video %s in run %s failed: %v\n", video.VideoID, scrapeRun.ID, err)
			emitter.Fail(err.Error())
			service.eventBus.Dispatch(event.RunFailedEvent, scrapeRun.ID)
			return
		}
	}

	if err := service.store.SetRunStatus(db, scrapeRun.ID, run.StatusCompleted); err != nil {
		log.Emit(logger.ERROR, "Completion of run %s failed: %v\n", scrapeRun.ID, err)
		emitter.Fail(err.Error())
		service.eventBus.Dispatch(event.RunFailedEvent, scrapeRun.ID)
		return
	}

	emitter.Done(scrapeRun.ID)
	service.eventBus.Dispatch(event.RunCompleteEvent, scrapeRun.ID)
}

// fetchCatalogue lists the channel's newest videos, merges listing publish
// times over the detail payload (the listing is authoritative for recency,
// the details for stats and metadata), and sorts by view count descending.
// The sort is stable so equal view counts keep their listing order.
func (service *Service) fetchCatalogue(ctx context.Context, channelID string, limit int) ([]youtube.VideoDetails, error) {
	entries, err := service.source.ListVideoIDs(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}

	videoIDs := make([]string, len(entries))
	publishedAt := make(map[string]time.Time, len(entries))
	for k, entry := range entries {
		videoIDs[k] = entry.VideoID
		publishedAt[entry.VideoID] = entry.PublishedAt
	}

	details, err := service.source.FetchDetails(ctx, videoIDs)
	if err != nil {
		return nil, err
	}

	for k := range details {
		if listed, ok := publishedAt[details[k].VideoID]; ok && !listed.IsZero() {
			details[k].PublishedAt = listed
		}
	}

	sort.SliceStable(details, func(i, j int) bool { return details[i].Views > details[j].Views })

	return details, nil
}

// reconcileVideo builds the row to persist for a video, reusing prior
// artifacts where the idempotence contract allows. A non-empty transcript on
// the most recent prior row (across any run) means all of that row's
// artifacts are reused verbatim and only the stats are refreshed. Otherwise
// artifacts are materialized fresh, except for the audio URL which is reused
// from the prior row independently of the transcript check.
func (service *Service) reconcileVideo(ctx context.Context, runID uuid.UUID, video *youtube.VideoDetails) (*run.VideoRow, error) {
	db := service.db.GetSqlxDb()
	prior, err := service.store.LatestRowForVideo(db, video.VideoID)
	if err != nil {
		return nil, err
	}

	if prior != nil && prior.Transcript != nil && *prior.Transcript != "" {
		videoURL := prior.VideoURL
		if videoURL == "" {
			videoURL = youtube.WatchURL(prior.VideoID)
		}

		return &run.VideoRow{
			RunID:         runID,
			VideoID:       prior.VideoID,
			VideoURL:      videoURL,
			Title:         prior.Title,
			Views:         video.Views,
			Likes:         video.Likes,
			Comments:      video.Comments,
			ThumbnailURL:  prior.ThumbnailURL,
			Transcript:    prior.Transcript,
			TranscriptURL: prior.TranscriptURL,
			AudioURL:      prior.AudioURL,
			PublishedAt:   prior.PublishedAt,
		}, nil
	}

	transcript := service.artifacts.Transcript(ctx, video.VideoID)
	thumbnailURL := service.artifacts.Thumbnail(ctx, video.VideoID, video.ThumbnailURL)
	transcriptURL := service.artifacts.TranscriptBlob(ctx, video.VideoID, transcript)

	var audioURL *string
	if prior != nil && prior.AudioURL != nil && *prior.AudioURL != "" {
		audioURL = prior.AudioURL
	} else {
		audioURL = service.artifacts.Audio(ctx, video.VideoID)
	}

	row := &run.VideoRow{
		RunID:         runID,
		VideoID:       video.VideoID,
		VideoURL:      youtube.WatchURL(video.VideoID),
		Title:         video.Title,
		Views:         video.Views,
		Likes:         video.Likes,
		Comments:      video.Comments,
		ThumbnailURL:  thumbnailURL,
		Transcript:    &transcript,
		TranscriptURL: transcriptURL,
		AudioURL:      audioURL,
	}
	if !video.PublishedAt.IsZero() {
		publishedAt := video.PublishedAt
		row.PublishedAt = &publishedAt
	}

	return row, nil
}
