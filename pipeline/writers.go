package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetFile is one encoded sheet ready to be stored in the archive.
type SheetFile struct {
	Name string
	Data []byte
}

// SheetWriter encodes a matrix of cells. base is the file name without an
// extension; writers append their own.
type SheetWriter interface {
	Write(base string, rows [][]string) ([]SheetFile, error)
}

// NewSheetWriter returns the writer for format: xlsx, csv, or dual.
func NewSheetWriter(format string) (SheetWriter, error) {
	switch strings.ToLower(format) {
	case "", "xlsx":
		return XLSXWriter{}, nil
	case "csv":
		return CSVWriter{}, nil
	case "dual":
		return DualWriter{writers: []SheetWriter{XLSXWriter{}, CSVWriter{}}}, nil
	default:
		return nil, fmt.Errorf("unknown sheet format %q", format)
	}
}

// CSVWriter encodes sheets as CSV.
type CSVWriter struct{}

// Write encodes rows as a single CSV file.
func (CSVWriter) Write(base string, rows [][]string) ([]SheetFile, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return []SheetFile{{Name: base + ".csv", Data: buf.Bytes()}}, nil
}

// XLSXWriter encodes sheets as a single-worksheet workbook.
type XLSXWriter struct{}

const sheetName = "Sheet1"

// Write encodes rows into one worksheet.
func (XLSXWriter) Write(base string, rows [][]string) ([]SheetFile, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("cell name for row %d: %w", i+1, err)
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return []SheetFile{{Name: base + ".xlsx", Data: buf.Bytes()}}, nil
}

// DualWriter outputs every sheet in both XLSX and CSV form.
type DualWriter struct {
	writers []SheetWriter
}

// Write runs each writer in turn.
func (dw DualWriter) Write(base string, rows [][]string) ([]SheetFile, error) {
	var files []SheetFile
	for _, w := range dw.writers {
		out, err := w.Write(base, rows)
		if err != nil {
			return nil, err
		}
		files = append(files, out...)
	}
	return files, nil
}

// SaveArchive writes data to dir/filename and returns the full path.
func SaveArchive(dir, filename string, data []byte) (string, error) {
	path := filepath.Join(dir, filename)
	if err := ensureDir(path); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return path, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
