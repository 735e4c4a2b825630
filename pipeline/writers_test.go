package pipeline

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

var sampleRows = [][]string{
	{"Attribute", "A_1", "B_2"},
	{"g: x", "1", ""},
	{"g: y", "", "2"},
}

func TestCSVWriterWrite(t *testing.T) {
	files, err := CSVWriter{}.Write("summary", sampleRows)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if len(files) != 1 || files[0].Name != "summary.csv" {
		t.Fatalf("files = %+v", files)
	}

	records, err := csv.NewReader(bytes.NewReader(files[0].Data)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || records[2][2] != "2" {
		t.Fatalf("records = %v", records)
	}
}

func TestXLSXWriterWrite(t *testing.T) {
	files, err := XLSXWriter{}.Write("summary", sampleRows)
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if len(files) != 1 || files[0].Name != "summary.xlsx" {
		t.Fatalf("files = %+v", files)
	}

	f, err := excelize.OpenReader(bytes.NewReader(files[0].Data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("read xlsx: %v", err)
	}
	if len(rows) != 3 || rows[0][2] != "B_2" || rows[1][1] != "1" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestNewSheetWriter(t *testing.T) {
	tests := []struct {
		format  string
		names   []string
		wantErr bool
	}{
		{format: "xlsx", names: []string{"s.xlsx"}},
		{format: "CSV", names: []string{"s.csv"}},
		{format: "dual", names: []string{"s.xlsx", "s.csv"}},
		{format: "ods", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, err := NewSheetWriter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSheetWriter(%q) error = %v", tt.format, err)
			}
			if tt.wantErr {
				return
			}
			files, err := w.Write("s", sampleRows)
			if err != nil {
				t.Fatal(err)
			}
			if len(files) != len(tt.names) {
				t.Fatalf("files = %d, want %d", len(files), len(tt.names))
			}
			for i, name := range tt.names {
				if files[i].Name != name {
					t.Errorf("file %d = %q, want %q", i, files[i].Name, name)
				}
			}
		})
	}
}

func TestSaveArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	path, err := SaveArchive(dir, "a-b-2025-01-01 00-00-00.zip", []byte("PK"))
	if err != nil {
		t.Fatalf("SaveArchive() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "PK" {
		t.Fatalf("read back = %q, %v", data, err)
	}
}
