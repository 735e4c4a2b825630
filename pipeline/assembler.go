package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/parser"
)

const (
	summaryBase  = "summary"
	manifestName = "manifest.json"
)

// Assembler lays records out in an ArchiveTree: one folder per record with a
// detail sheet and its assets, plus a summary sheet and manifest at the root.
type Assembler struct {
	tree        *ArchiveTree
	sheets      SheetWriter
	generatedAt time.Time

	records []*models.Record
	folders []string
}

// NewAssembler starts an empty archive.
func NewAssembler(sheets SheetWriter, generatedAt time.Time) *Assembler {
	return &Assembler{
		tree:        NewArchiveTree(generatedAt),
		sheets:      sheets,
		generatedAt: generatedAt,
	}
}

// RecordFolder receives one record's assets.
type RecordFolder struct {
	tree   *ArchiveTree
	name   string
	prefix string
	Stored int
}

// Name is the folder name inside the archive.
func (f *RecordFolder) Name() string { return f.name }

// AddAsset stores blob as {title}_{role}.{ext}.
func (f *RecordFolder) AddAsset(blob models.AssetBlob) error {
	ext := parser.DeriveExtension(blob.URL, blob.ContentType, blob.Role)
	filename := fmt.Sprintf("%s_%s.%s", f.prefix, blob.Role.Label(), ext)
	if _, err := f.tree.AddFile(f.name, filename, blob.Data); err != nil {
		return err
	}
	f.Stored++
	return nil
}

// AddRecord creates the record's folder and writes its detail sheet.
func (a *Assembler) AddRecord(rec *models.Record) (*RecordFolder, error) {
	folder, err := a.tree.AddFolder(parser.FolderName(rec.Title, string(rec.ID)))
	if err != nil {
		return nil, err
	}

	prefix := parser.SanitizeName(rec.Title)
	files, err := a.sheets.Write(prefix+"_details", DetailRows(rec))
	if err != nil {
		return nil, fmt.Errorf("encode detail sheet for %s: %w", rec.ID, err)
	}
	for _, file := range files {
		if _, err := a.tree.AddFile(folder, file.Name, file.Data); err != nil {
			return nil, err
		}
	}

	a.records = append(a.records, rec)
	a.folders = append(a.folders, folder)
	slog.Debug("record folder added",
		slog.String("id", string(rec.ID)),
		slog.String("folder", folder),
	)
	return &RecordFolder{tree: a.tree, name: folder, prefix: prefix}, nil
}

// Count is the number of record folders added so far.
func (a *Assembler) Count() int {
	return len(a.records)
}

// Finalize writes the summary sheet and manifest, then encodes the archive.
func (a *Assembler) Finalize() ([]byte, error) {
	files, err := a.sheets.Write(summaryBase, SummaryRows(a.records, a.folders))
	if err != nil {
		return nil, fmt.Errorf("encode summary sheet: %w", err)
	}
	for _, file := range files {
		if _, err := a.tree.AddFile("", file.Name, file.Data); err != nil {
			return nil, err
		}
	}

	manifest := models.Manifest{
		GeneratedAt: a.generatedAt,
		TotalCount:  len(a.records),
		Models:      a.records,
		Files:       a.tree.Files(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if _, err := a.tree.AddFile("", manifestName, data); err != nil {
		return nil, err
	}

	return a.tree.Finalize()
}

// DetailRows lays out one record: identifier, title, each detail group, then
// the resolved asset links.
func DetailRows(rec *models.Record) [][]string {
	rows := [][]string{
		{"ID", string(rec.ID)},
		{"Title", rec.Title},
	}
	for _, group := range rec.DetailGroups {
		rows = append(rows, []string{}, []string{group.Name})
		for _, field := range group.Fields {
			rows = append(rows, []string{field.Label, field.Value})
		}
	}

	roles := rec.Roles()
	if len(roles) > 0 {
		rows = append(rows, []string{}, []string{"Resource links"})
		for _, role := range roles {
			u, _ := rec.AssetURL(role)
			rows = append(rows, []string{role.Label(), u})
		}
	}
	return rows
}

// SummaryRows builds the cross-record table: one column per folder, one row
// per "{group}: {label}" key in first-appearance order.
func SummaryRows(records []*models.Record, folders []string) [][]string {
	header := append([]string{"Attribute"}, folders...)

	var keys []string
	values := map[string][]string{}
	for col, rec := range records {
		for _, group := range rec.DetailGroups {
			for _, field := range group.Fields {
				key := group.Name + ": " + field.Label
				row, ok := values[key]
				if !ok {
					keys = append(keys, key)
					row = make([]string, len(records))
					values[key] = row
				}
				if row[col] == "" {
					row[col] = field.Value
				}
			}
		}
	}

	rows := make([][]string, 0, len(keys)+1)
	rows = append(rows, header)
	for _, key := range keys {
		rows = append(rows, append([]string{key}, values[key]...))
	}
	return rows
}
