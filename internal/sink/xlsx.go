package sink

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/davuth-chan/khmerscribe/internal/entity"
)

// writeWorkbook renders the full record set as a single-sheet XLSX file.
func writeWorkbook(path string, recs []entity.ExtractionRecord) error {
	f := excelize.NewFile()
	const sheet = "Transcriptions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIdx, _ := f.GetSheetIndex("Sheet1"); defIdx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{"Document URL", "Page", "Khmer Text", "English Text", "Model", "Status"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.DocumentURL)
		write(2, r.PageIndex+1)
		write(3, r.KhmerText)
		write(4, r.EnglishText)
		write(5, r.Model)
		write(6, string(r.Status))
		row++
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return f.Close()
}
