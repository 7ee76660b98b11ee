package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tubelens/tubelens/internal/api"
	"github.com/tubelens/tubelens/internal/artifact"
	"github.com/tubelens/tubelens/internal/database"
	"github.com/tubelens/tubelens/internal/event"
	"github.com/tubelens/tubelens/internal/run"
	"github.com/tubelens/tubelens/internal/scrape"
	"github.com/tubelens/tubelens/internal/storage"
	"github.com/tubelens/tubelens/internal/youtube"
	"github.com/tubelens/tubelens/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		BroadcastRunUpdate(uuid.UUID) error
		BroadcastRunComplete(uuid.UUID) error
		BroadcastRunFailed(uuid.UUID) error
	}
)

// tubelensImpl is the top-level object for the server. It is responsible for
// initialising the database, stores, services, and event handling, and for
// keeping them running.
type tubelensImpl struct {
	eventBus        event.EventCoordinator
	config          TubelensConfig
	db              database.Manager
	runStore        *run.Store
	restGateway     RestGateway
	activityService *activityService
	scrapeService   *scrape.Service
}

func New(config TubelensConfig) *tubelensImpl {
	log.Emit(logger.DEBUG, "Bootstrapping services using config: %#v\n", config)

	return &tubelensImpl{
		eventBus: event.New(),
		config:   config,
		db:       database.New(),
		runStore: run.NewStore(),
	}
}

// Run brings up the database connection, stores, and services. It will not
// return until the server is stopped; to stop it, cancel the provided
// context. Unrecoverable service errors also cause a stop.
func (tubelens *tubelensImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.INFO, "Connecting to database...\n")
	if err := tubelens.db.Connect(tubelens.config.Database); err != nil {
		return err
	}

	youtubeClient, err := youtube.NewClient(ctx, tubelens.config.YouTube)
	if err != nil {
		return fmt.Errorf("failed to construct video platform client: %w", err)
	}

	blobStore, err := storage.New(ctx, tubelens.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to construct blob store: %w", err)
	}

	materializer := artifact.NewMaterializer(blobStore, artifact.NewWhisperTranscriber(tubelens.config.Whisper, nil))
	tubelens.scrapeService = scrape.New(tubelens.db, tubelens.runStore, youtubeClient, materializer, tubelens.eventBus)
	tubelens.restGateway = api.NewRestGateway(&tubelens.config.RestConfig, tubelens.db, tubelens.runStore, tubelens.scrapeService)
	tubelens.activityService = newActivityService(tubelens.restGateway, tubelens.eventBus)

	wg := &sync.WaitGroup{}
	tubelens.spawnAsyncService(ctx, wg, tubelens.restGateway, "rest-gateway", crashHandler)
	tubelens.spawnAsyncService(ctx, wg, tubelens.activityService, "activity-service", crashHandler)
	log.Emit(logger.INFO, "All services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService runs the provided service as its own goroutine, ensuring
// the service waitgroup is updated correctly and panics are reported as
// crashes.
func (tubelens *tubelensImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.INFO, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
