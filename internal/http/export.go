package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/qb411/cloud-health-map/internal/feed"
	"github.com/qb411/cloud-health-map/internal/models"
)

var eventExportHeader = []string{
	"GUID",
	"Published At",
	"Region",
	"Severity",
	"Title",
	"Description",
	"Simulated",
}

// GenerateEventLogExport renders the retained event window as an xlsx
// workbook for operators who want the log outside the dashboard.
func GenerateEventLogExport(events []models.HealthEvent) ([]byte, error) {
	f := excelize.NewFile()
	// Don't defer Close: WriteTo needs the file open.

	sheetName := "Health Events"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	for col, header := range eventExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, event := range events {
		region := ""
		if code, ok := feed.RegionCode(event.Title); ok {
			region = code
		}
		published := ""
		if !event.PublishedAt.IsZero() {
			published = event.PublishedAt.UTC().Format(time.RFC3339)
		}

		values := []any{
			event.GUID,
			published,
			region,
			feed.Classify(event.Description).String(),
			event.Title,
			event.Description,
			event.Simulated,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write event row: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}

	return buf.Bytes(), nil
}
