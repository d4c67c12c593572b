package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelLoader flattens spreadsheet rows into tab-separated text, one sheet
// per paragraph block.
type ExcelLoader struct{}

func NewExcelLoader() *ExcelLoader { return &ExcelLoader{} }

func (l *ExcelLoader) Extensions() []string { return []string{".xlsx", ".xlsm"} }

func (l *ExcelLoader) Load(ctx context.Context, path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to open workbook: %w", err)}
	}
	defer f.Close()

	var textBuilder strings.Builder
	sheets := f.GetSheetList()

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to read sheet %s: %w", sheet, err)}
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(sheet)
		textBuilder.WriteString("\n")

		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			textBuilder.WriteString(line)
			textBuilder.WriteString("\n")
		}
	}

	text := CleanText(textBuilder.String())
	if text == "" {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("workbook contains no cell data")}
	}

	meta := FileMetadata(path)
	meta["sheets"] = len(sheets)

	return &Result{Text: text, Metadata: meta}, nil
}
