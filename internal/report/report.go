package report

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/fmueller/chunkscribe/internal/pipeline"
)

const (
	filesSheet = "Files"
	runSheet   = "Run"
)

var header = []interface{}{"file", "status", "segments", "transcribed", "failed segments", "characters", "output", "error"}

// WriteXLSX writes one row per processed file plus a sheet describing the run.
func WriteXLSX(path string, batch *pipeline.BatchReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", filesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, filesSheet, 1, header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(filesSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, file := range batch.Files {
		if err := setRow(f, filesSheet, i+2, fileRow(file)); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(runSheet); err != nil {
		return fmt.Errorf("create run sheet: %w", err)
	}
	runRows := [][]interface{}{
		{"run id", batch.RunID},
		{"files", len(batch.Files)},
		{"succeeded", batch.Succeeded()},
		{"failed", len(batch.Failed())},
		{"combined output", batch.CombinedPath},
		{"canceled", batch.Canceled},
	}
	for i, row := range runRows {
		if err := setRow(f, runSheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(filepath.Clean(path)); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}

func fileRow(file pipeline.FileResult) []interface{} {
	status := "ok"
	errText := ""
	if !file.OK() {
		status = "failed"
		errText = file.Err.Error()
	}

	segments, transcribed, chars := 0, 0, 0
	if file.Transcript != nil {
		segments = len(file.Transcript.Outcomes)
		transcribed = file.Transcript.Succeeded()
		chars = len([]rune(file.Transcript.CombinedText))
	}

	return []interface{}{
		file.ID,
		status,
		segments,
		transcribed,
		segments - transcribed,
		chars,
		file.OutputPath,
		errText,
	}
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
