package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tubelens/tubelens/internal/run"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Videos"

var columns = []string{
	"videoId", "title", "views", "likes", "comments",
	"thumbnailURL", "transcript", "scrapedAt", "publishedAt",
}

// WriteCSV projects video rows to CSV with a fixed column layout, one header
// row followed by one record per video.
func WriteCSV(w io.Writer, rows []*run.VideoRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		if err := writer.Write([]string{
			row.VideoID,
			row.Title,
			strconv.FormatInt(row.Views, 10),
			strconv.FormatInt(row.Likes, 10),
			strconv.FormatInt(row.Comments, 10),
			row.ThumbnailURL,
			transcriptOrEmpty(row),
			formatTime(&row.ScrapedAt),
			formatTime(row.PublishedAt),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record for video %s: %w", row.VideoID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteXLSX projects video rows to a single-sheet XLSX workbook with the same
// column layout as the CSV export.
func WriteXLSX(w io.Writer, rows []*run.VideoRow) error {
	workbook := excelize.NewFile()
	defer workbook.Close()

	index, err := workbook.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create export sheet: %w", err)
	}
	workbook.SetActiveSheet(index)
	if err := workbook.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for k, column := range columns {
		header[k] = column
	}
	if err := workbook.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	for k, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, k+2)
		if err != nil {
			return err
		}

		record := []interface{}{
			row.VideoID,
			row.Title,
			row.Views,
			row.Likes,
			row.Comments,
			row.ThumbnailURL,
			transcriptOrEmpty(row),
			formatTime(&row.ScrapedAt),
			formatTime(row.PublishedAt),
		}
		if err := workbook.SetSheetRow(SheetName, cell, &record); err != nil {
			return fmt.Errorf("failed to write export record for video %s: %w", row.VideoID, err)
		}
	}

	if err := workbook.Write(w); err != nil {
		return fmt.Errorf("failed to serialize workbook: %w", err)
	}

	return nil
}

func transcriptOrEmpty(row *run.VideoRow) string {
	if row.Transcript == nil {
		return ""
	}

	return *row.Transcript
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}
