package pipeline

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/go-harvest-models/models"
)

func TestArchiveTreeFolderCollision(t *testing.T) {
	tree := NewArchiveTree(time.Now())

	first, err := tree.AddFolder("Caster_1")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := tree.AddFolder("Caster_1")
	third, _ := tree.AddFolder("Caster/1")

	if first != "Caster_1" || second != "Caster_1_2" || third != "Caster_1_3" {
		t.Fatalf("folders = %q, %q, %q", first, second, third)
	}
}

func TestArchiveTreeFileCollision(t *testing.T) {
	tree := NewArchiveTree(time.Now())
	folder, _ := tree.AddFolder("A_1")

	p1, err := tree.AddFile(folder, "A_cad.step", []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	same, _ := tree.AddFile(folder, "A_cad.step", []byte("one"))
	other, _ := tree.AddFile(folder, "A_cad.step", []byte("two"))
	third, _ := tree.AddFile(folder, "A_cad.step", []byte("three"))

	if p1 != "A_1/A_cad.step" || same != p1 {
		t.Fatalf("identical write should be a no-op: %q, %q", p1, same)
	}
	if other != "A_1/A_cad_2.step" || third != "A_1/A_cad_3.step" {
		t.Fatalf("renamed = %q, %q", other, third)
	}
	if n := len(tree.Files()); n != 3 {
		t.Fatalf("files = %d, want 3", n)
	}
}

func TestArchiveTreeUnknownFolder(t *testing.T) {
	tree := NewArchiveTree(time.Now())
	if _, err := tree.AddFile("missing", "a.txt", nil); err == nil {
		t.Fatalf("expected error for unknown folder")
	}
}

func TestArchiveTreeFinalizeOnce(t *testing.T) {
	tree := NewArchiveTree(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	folder, _ := tree.AddFolder("x")
	tree.AddFile(folder, "a.txt", []byte("a"))

	data, err := tree.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	view := readArchive(t, data)
	if len(view.folders) != 1 || string(view.files["x/a.txt"]) != "a" {
		t.Fatalf("archive = %+v", view)
	}

	if _, err := tree.Finalize(); !errors.Is(err, ErrArchiveFinalized) {
		t.Fatalf("second Finalize() error = %v", err)
	}
	if _, err := tree.AddFolder("y"); !errors.Is(err, ErrArchiveFinalized) {
		t.Fatalf("AddFolder after finalize error = %v", err)
	}
}

func sampleRecord(id, title string, groups ...models.DetailGroup) *models.Record {
	if groups == nil {
		groups = []models.DetailGroup{}
	}
	return &models.Record{
		ID:           models.Identifier(id),
		Title:        title,
		DetailGroups: groups,
		AssetRefs:    map[models.AssetRole]string{},
	}
}

func TestDetailRows(t *testing.T) {
	rec := sampleRecord("7", "Wheel 7", models.DetailGroup{
		Name:   "wheel attributes",
		Fields: []models.Field{{Label: "Diameter", Value: "50 mm"}},
	})
	rec.AssetRefs[models.RolePDF] = "https://x.test/7.pdf"
	rec.AssetRefs[models.RoleCAD] = "https://x.test/7.step"

	rows := DetailRows(rec)
	want := [][]string{
		{"ID", "7"},
		{"Title", "Wheel 7"},
		{},
		{"wheel attributes"},
		{"Diameter", "50 mm"},
		{},
		{"Resource links"},
		{"cad", "https://x.test/7.step"},
		{"pdf", "https://x.test/7.pdf"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if len(rows[i]) != len(want[i]) {
			t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
		}
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
			}
		}
	}
}

func TestSummaryRows(t *testing.T) {
	a := sampleRecord("1", "A", models.DetailGroup{Name: "g", Fields: []models.Field{{Label: "x", Value: "1"}, {Label: "y", Value: "2"}}})
	b := sampleRecord("2", "B", models.DetailGroup{Name: "g", Fields: []models.Field{{Label: "z", Value: "3"}, {Label: "x", Value: "4"}}})
	c := sampleRecord("3", "C")

	rows := SummaryRows([]*models.Record{a, b, c}, []string{"A_1", "B_2", "C_3"})

	if len(rows) != 4 {
		t.Fatalf("rows = %v", rows)
	}
	if got := rows[0]; len(got) != 4 || got[0] != "Attribute" || got[3] != "C_3" {
		t.Fatalf("header = %v", got)
	}
	keys := []string{rows[1][0], rows[2][0], rows[3][0]}
	if keys[0] != "g: x" || keys[1] != "g: y" || keys[2] != "g: z" {
		t.Fatalf("keys = %v", keys)
	}
	if rows[1][1] != "1" || rows[1][2] != "4" || rows[1][3] != "" {
		t.Fatalf("x row = %v", rows[1])
	}
	if rows[3][1] != "" || rows[3][2] != "3" {
		t.Fatalf("z row = %v", rows[3])
	}
}

func TestAssemblerManifest(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	asm := NewAssembler(CSVWriter{}, at)

	folder, err := asm.AddRecord(sampleRecord("9", "Nine"))
	if err != nil {
		t.Fatal(err)
	}
	if err := folder.AddAsset(models.AssetBlob{Role: models.RolePrimaryImage, URL: "https://x.test/get?id=9", ContentType: "image/png", Data: []byte("png")}); err != nil {
		t.Fatal(err)
	}

	data, err := asm.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	view := readArchive(t, data)

	if _, ok := view.files["Nine_9/Nine_image.png"]; !ok {
		t.Fatalf("asset missing: %v", view.files)
	}
	if _, ok := view.files["summary.csv"]; !ok {
		t.Fatalf("summary missing")
	}

	var manifest models.Manifest
	if err := json.Unmarshal(view.files["manifest.json"], &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.TotalCount != 1 || len(manifest.Models) != 1 || !manifest.GeneratedAt.Equal(at) {
		t.Fatalf("manifest = %+v", manifest)
	}
	if len(manifest.Files) != 3 {
		t.Fatalf("manifest files = %+v, want detail sheet, asset, summary", manifest.Files)
	}
	if manifest.Files[1].Path != "Nine_9/Nine_image.png" || manifest.Files[1].Size != 3 || len(manifest.Files[1].SHA256) != 64 {
		t.Fatalf("asset entry = %+v", manifest.Files[1])
	}
}
