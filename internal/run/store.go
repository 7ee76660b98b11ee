package run

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/tubelens/tubelens/internal/database"
)

var ErrRunNotFound = errors.New("scrape run does not exist")

type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type (
	// Run is a single scrape job. Rows attached to it are append-only;
	// re-running the same channel creates a new run with fresh rows.
	Run struct {
		ID        uuid.UUID `db:"id" json:"id"`
		Query     string    `db:"query" json:"query"`
		ChannelID string    `db:"channel_id" json:"channelId"`
		Status    Status    `db:"status" json:"status"`
		CreatedAt time.Time `db:"created_at" json:"createdAt"`
	}

	// RunSummary is a Run joined with the number of video rows it produced.
	RunSummary struct {
		Run
		VideoCount int `db:"video_count" json:"videoCount"`
	}

	// VideoRow is the per-video result of a run. Transcript, TranscriptURL
	// and AudioURL are nullable; absence means the artifact could not be
	// materialized when the row was written.
	VideoRow struct {
		ID            uuid.UUID  `db:"id" json:"-"`
		RunID         uuid.UUID  `db:"run_id" json:"-"`
		VideoID       string     `db:"video_id" json:"videoId"`
		VideoURL      string     `db:"video_url" json:"videoUrl"`
		Title         string     `db:"title" json:"title"`
		Views         int64      `db:"views" json:"views"`
		Likes         int64      `db:"likes" json:"likes"`
		Comments      int64      `db:"comments" json:"comments"`
		ThumbnailURL  string     `db:"thumbnail_url" json:"thumbnailUrl"`
		Transcript    *string    `db:"transcript" json:"transcript,omitempty"`
		TranscriptURL *string    `db:"transcript_url" json:"transcriptUrl,omitempty"`
		AudioURL      *string    `db:"audio_url" json:"audioUrl,omitempty"`
		PublishedAt   *time.Time `db:"published_at" json:"publishedAt,omitempty"`
		ScrapedAt     time.Time  `db:"scraped_at" json:"scrapedAt"`
	}

	Store struct{}
)

func NewStore() *Store { return &Store{} }

func (store *Store) CreateRun(db database.Queryable, id uuid.UUID, query string, channelID string) (*Run, error) {
	_, err := db.Exec(`
		INSERT INTO scrape_runs(id, query, channel_id, status, created_at)
		VALUES ($1, $2, $3, $4, current_timestamp)
	`, id, query, channelID, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to insert new scrape run: %w", err)
	}

	return store.GetRun(db, id)
}

func (store *Store) SetRunStatus(db database.Queryable, id uuid.UUID, status Status) error {
	result, err := db.Exec(`UPDATE scrape_runs SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status of run %s: %w", id, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (store *Store) GetRun(db database.Queryable, id uuid.UUID) (*Run, error) {
	var run Run
	if err := db.Get(&run, `SELECT * FROM scrape_runs WHERE id=$1`, id); err != nil {
		return nil, ErrRunNotFound
	}

	return &run, nil
}

// ListRuns returns the most recent runs (newest first), each annotated with
// its video row count.
func (store *Store) ListRuns(db database.Queryable, limit int) ([]*RunSummary, error) {
	query, args, err := squirrel.
		Select("scrape_runs.*", "COUNT(video_rows.id) AS video_count").
		From("scrape_runs").
		LeftJoin("video_rows ON video_rows.run_id = scrape_runs.id").
		GroupBy("scrape_runs.id").
		OrderBy("scrape_runs.created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list runs query: %w", err)
	}

	var results []RunSummary
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	output := make([]*RunSummary, len(results))
	for k := range results {
		output[k] = &results[k]
	}

	return output, nil
}

// LatestRun returns the most recently created run, optionally restricted to
// runs whose input query matches exactly. Returns nil when no run matches.
func (store *Store) LatestRun(db database.Queryable, query string) (*Run, error) {
	builder := squirrel.
		Select("scrape_runs.*").
		From("scrape_runs").
		OrderBy("scrape_runs.created_at DESC").
		Limit(1)
	if query != "" {
		builder = builder.Where("scrape_runs.query=?", query)
	}

	sqlQuery, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct latest run query: %w", err)
	}

	var result Run
	if err := db.Get(&result, db.Rebind(sqlQuery), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch latest run: %w", err)
	}

	return &result, nil
}

func (store *Store) InsertVideoRow(db database.Queryable, row *VideoRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}

	_, err := db.NamedExec(`
		INSERT INTO video_rows(id, run_id, video_id, video_url, title, views, likes, comments,
			thumbnail_url, transcript, transcript_url, audio_url, published_at, scraped_at)
		VALUES (:id, :run_id, :video_id, :video_url, :title, :views, :likes, :comments,
			:thumbnail_url, :transcript, :transcript_url, :audio_url, :published_at, current_timestamp)
	`, row)
	if err != nil {
		return fmt.Errorf("failed to insert video row for run %s: %w", row.RunID, err)
	}

	return nil
}

// RowsForRun returns the rows for a run ordered by view count (descending).
// A run with no rows, or an unknown run ID, yields an empty slice.
func (store *Store) RowsForRun(db database.Queryable, runID uuid.UUID) ([]*VideoRow, error) {
	query, args, err := selectRowBuilder().
		Where("video_rows.run_id=?", runID).
		OrderBy("video_rows.views DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct run results query: %w", err)
	}

	var results []VideoRow
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	output := make([]*VideoRow, len(results))
	for k := range results {
		output[k] = &results[k]
	}

	return output, nil
}

// LatestRowForVideo returns the most recently scraped row for a video across
// all runs, or nil when the video has never been scraped.
func (store *Store) LatestRowForVideo(db database.Queryable, videoID string) (*VideoRow, error) {
	query, args, err := selectRowBuilder().
		Where("video_rows.video_id=?", videoID).
		OrderBy("video_rows.scraped_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct latest row query: %w", err)
	}

	var row VideoRow
	if err := db.Get(&row, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch latest row for video %s: %w", videoID, err)
	}

	return &row, nil
}

func selectRowBuilder() squirrel.SelectBuilder {
	return squirrel.Select("video_rows.*").From("video_rows")
}
