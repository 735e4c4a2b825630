package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/parser"
	"github.com/klauspost/compress/zip"
)

// ErrArchiveFinalized is returned by any write after Finalize.
var ErrArchiveFinalized = errors.New("archive: already finalized")

type archiveEntry struct {
	path string
	dir  bool
	data []byte
}

// ArchiveTree accumulates folders and files in insertion order. Nothing is
// encoded until Finalize, which may be called once.
type ArchiveTree struct {
	modified  time.Time
	entries   []archiveEntry
	index     map[string]int
	finalized bool
}

// NewArchiveTree stamps every entry with modified.
func NewArchiveTree(modified time.Time) *ArchiveTree {
	return &ArchiveTree{
		modified: modified,
		index:    make(map[string]int),
	}
}

// AddFolder creates a top-level folder. A name already in use gets a numeric
// suffix (_2, _3, ...); the name actually used is returned.
func (t *ArchiveTree) AddFolder(name string) (string, error) {
	if t.finalized {
		return "", ErrArchiveFinalized
	}
	name = parser.SanitizeName(name)

	final := name
	for n := 2; t.exists(final + "/"); n++ {
		final = name + "_" + strconv.Itoa(n)
	}
	if final != name {
		slog.Warn("archive folder name collision",
			slog.String("name", name),
			slog.String("renamed", final),
		)
	}

	t.add(archiveEntry{path: final + "/", dir: true})
	return final, nil
}

// AddFile stores data under folder (empty for the archive root). Writing the
// same bytes twice under one name is a no-op; different bytes get a numeric
// suffix before the extension. The stored path is returned.
func (t *ArchiveTree) AddFile(folder, name string, data []byte) (string, error) {
	if t.finalized {
		return "", ErrArchiveFinalized
	}
	if folder != "" && !t.exists(folder+"/") {
		return "", fmt.Errorf("archive: unknown folder %q", folder)
	}

	name = parser.SanitizeName(name)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := path.Join(folder, name)
	for n := 2; ; n++ {
		i, taken := t.index[candidate]
		if !taken {
			break
		}
		if bytes.Equal(t.entries[i].data, data) {
			slog.Debug("archive entry already present", slog.String("path", candidate))
			return candidate, nil
		}
		next := path.Join(folder, stem+"_"+strconv.Itoa(n)+ext)
		slog.Warn("archive file name collision",
			slog.String("path", candidate),
			slog.String("renamed", next),
		)
		candidate = next
	}

	t.add(archiveEntry{path: candidate, data: data})
	return candidate, nil
}

// Files lists the stored files (folders excluded) with their sizes and
// digests, in insertion order.
func (t *ArchiveTree) Files() []models.ManifestFile {
	files := make([]models.ManifestFile, 0, len(t.entries))
	for _, e := range t.entries {
		if e.dir {
			continue
		}
		sum := sha256.Sum256(e.data)
		files = append(files, models.ManifestFile{
			Path:   e.path,
			Size:   len(e.data),
			SHA256: hex.EncodeToString(sum[:]),
		})
	}
	return files
}

// Finalize encodes the tree as a zip archive. It is the only point at which
// encoding happens.
func (t *ArchiveTree) Finalize() ([]byte, error) {
	if t.finalized {
		return nil, ErrArchiveFinalized
	}
	t.finalized = true

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range t.entries {
		header := &zip.FileHeader{
			Name:     e.path,
			Method:   zip.Deflate,
			Modified: t.modified,
		}
		if e.dir {
			header.Method = zip.Store
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %q: %w", e.path, err)
		}
		if e.dir {
			continue
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("write archive entry %q: %w", e.path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	t.entries = nil
	t.index = nil
	return buf.Bytes(), nil
}

func (t *ArchiveTree) exists(p string) bool {
	_, ok := t.index[p]
	return ok
}

func (t *ArchiveTree) add(e archiveEntry) {
	t.index[e.path] = len(t.entries)
	t.entries = append(t.entries, e)
}
