package leaderboard

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Leaderboard"

// ExportXLSX renders the top n of a board as an Excel workbook.
func (b *Board) ExportXLSX(ctx context.Context, period Period, n int) ([]byte, error) {
	entries, err := b.Top(ctx, period, n)
	if err != nil {
		return nil, err
	}
	return renderXLSX(period, entries)
}

// renderXLSX writes one sheet with a header row and one row per entry.
func renderXLSX(period Period, entries []Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	header := []any{"Rank", "Player", "XP", "Level"}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		row := []any{e.Rank, e.DisplayName, e.XP, e.Level}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("render %s workbook: %w", period, err)
	}
	return buf.Bytes(), nil
}
