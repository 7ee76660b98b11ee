package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tubelens/tubelens/internal/database"
	"github.com/tubelens/tubelens/internal/run"
	"github.com/tubelens/tubelens/internal/scrape"
	"github.com/tubelens/tubelens/internal/youtube"
	"github.com/tubelens/tubelens/pkg/logger"
)

var controllerLogger = logger.Get("RunsController")

const listRunLimit = 25

type (
	// StartScrapeRequest carries the scrape input. Out-of-range limits are
	// clamped by the scrape service rather than rejected here.
	StartScrapeRequest struct {
		Input string `json:"input" validate:"required"`
		Limit int    `json:"limit"`
	}

	// RunDto is the response shape for endpoints returning runs.
	RunDto struct {
		ID         uuid.UUID `json:"id"`
		Query      string    `json:"query"`
		ChannelID  string    `json:"channelId"`
		CreatedAt  string    `json:"createdAt"`
		Status     string    `json:"status"`
		VideoCount int       `json:"videoCount"`
	}

	// RowDto is the response shape for a single video result row.
	RowDto struct {
		VideoID       string  `json:"videoId"`
		VideoURL      string  `json:"videoURL"`
		Title         string  `json:"title"`
		Views         int64   `json:"views"`
		Likes         int64   `json:"likes"`
		Comments      int64   `json:"comments"`
		ThumbnailURL  string  `json:"thumbnailURL"`
		Transcript    *string `json:"transcript,omitempty"`
		TranscriptURL *string `json:"transcriptURL,omitempty"`
		AudioURL      *string `json:"audioURL,omitempty"`
		PublishedAt   string  `json:"publishedAt,omitempty"`
	}

	ResultsDto struct {
		Rows []*RowDto `json:"rows"`
	}

	LatestResultsDto struct {
		RunID *uuid.UUID `json:"jobId"`
		Rows  []*RowDto  `json:"rows"`
	}

	Store interface {
		ListRuns(db database.Queryable, limit int) ([]*run.RunSummary, error)
		RowsForRun(db database.Queryable, runID uuid.UUID) ([]*run.VideoRow, error)
		LatestRun(db database.Queryable, query string) (*run.Run, error)
	}

	ScrapeService interface {
		Scrape(ctx context.Context, input string, limit int) <-chan scrape.ProgressEvent
	}

	Controller struct {
		db       database.Manager
		store    Store
		service  ScrapeService
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, db database.Manager, store Store, service ScrapeService) *Controller {
	return &Controller{db: db, store: store, service: service, validate: validate}
}

// SetRoutes accepts the Echo group for the run endpoints and sets the routes
// on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.GET("/latest/", controller.latest)
	eg.GET("/:id/results/", controller.results)
	eg.GET("/:id/export/csv/", controller.exportCSV)
	eg.GET("/:id/export/xlsx/", controller.exportXLSX)
}

// SetScrapeRoutes accepts the Echo group for the scrape endpoint.
func (controller *Controller) SetScrapeRoutes(eg *echo.Group) {
	eg.POST("/", controller.startScrape)
}

// startScrape kicks off a new run and streams its progress frames to the
// caller as server-sent events. The stream carries exactly one terminal
// frame; the run itself continues even if the caller disconnects early.
func (controller *Controller) startScrape(ec echo.Context) error {
	var request StartScrapeRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing input")
	}

	response := ec.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set(echo.HeaderCacheControl, "no-cache, no-transform")
	response.Header().Set(echo.HeaderConnection, "keep-alive")
	response.WriteHeader(http.StatusOK)

	// The run must not be cancelled when the caller goes away; disconnection
	// simply stops delivery of the remaining frames.
	events := controller.service.Scrape(context.WithoutCancel(ec.Request().Context()), request.Input, request.Limit)
	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			controllerLogger.Emit(logger.ERROR, "Failed to marshal progress frame: %v\n", err)
			continue
		}

		if _, err := fmt.Fprintf(response, "data: %s\n\n", payload); err != nil {
			controllerLogger.Emit(logger.DEBUG, "Progress stream consumer disconnected: %v\n", err)
			continue
		}
		response.Flush()
	}

	return nil
}

// list returns the most recent runs, newest first.
func (controller *Controller) list(ec echo.Context) error {
	summaries, err := controller.store.ListRuns(controller.db.GetSqlxDb(), listRunLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*RunDto, len(summaries))
	for k, v := range summaries {
		dtos[k] = newRunDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

// results returns the rows produced by a run, ordered by view count. An
// unknown run id yields an empty row set rather than an error.
func (controller *Controller) results(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return ec.JSON(http.StatusOK, ResultsDto{Rows: []*RowDto{}})
	}

	rows, err := controller.store.RowsForRun(controller.db.GetSqlxDb(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, ResultsDto{Rows: newRowDtos(rows)})
}

// latest returns the rows of the most recent run, optionally restricted to
// runs matching the given input query exactly.
func (controller *Controller) latest(ec echo.Context) error {
	db := controller.db.GetSqlxDb()
	latestRun, err := controller.store.LatestRun(db, ec.QueryParam("query"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if latestRun == nil {
		return ec.JSON(http.StatusOK, LatestResultsDto{RunID: nil, Rows: []*RowDto{}})
	}

	rows, err := controller.store.RowsForRun(db, latestRun.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, LatestResultsDto{RunID: &latestRun.ID, Rows: newRowDtos(rows)})
}

func newRunDto(summary *run.RunSummary) *RunDto {
	return &RunDto{
		ID:         summary.ID,
		Query:      summary.Query,
		ChannelID:  summary.ChannelID,
		CreatedAt:  summary.CreatedAt.UTC().Format(time.RFC3339),
		Status:     string(summary.Status),
		VideoCount: summary.VideoCount,
	}
}

func newRowDtos(rows []*run.VideoRow) []*RowDto {
	dtos := make([]*RowDto, len(rows))
	for k, row := range rows {
		videoURL := row.VideoURL
		if videoURL == "" {
			videoURL = youtube.WatchURL(row.VideoID)
		}

		dto := &RowDto{
			VideoID:       row.VideoID,
			VideoURL:      videoURL,
			Title:         row.Title,
			Views:         row.Views,
			Likes:         row.Likes,
			Comments:      row.Comments,
			ThumbnailURL:  row.ThumbnailURL,
			Transcript:    row.Transcript,
			TranscriptURL: row.TranscriptURL,
			AudioURL:      row.AudioURL,
		}
		if row.PublishedAt != nil {
			dto.PublishedAt = row.PublishedAt.UTC().Format(time.RFC3339)
		}

		dtos[k] = dto
	}

	return dtos
}
