package page

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileSource loads a saved page: an HTML file plus an optional JSON sidecar
// holding the URL, session storage and captured globals.
type FileSource struct {
	HTMLPath  string
	StatePath string
	URL       string
}

type fileState struct {
	URL            string            `json:"url"`
	SessionStorage map[string]string `json:"sessionStorage"`
	Globals        map[string]any    `json:"globals"`
}

// Capture reads the files from disk.
func (f FileSource) Capture(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(f.HTMLPath)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}

	snap := &Snapshot{
		URL:            f.URL,
		HTML:           string(raw),
		SessionStorage: map[string]string{},
		Globals:        map[string]string{},
	}
	if f.StatePath == "" {
		return snap, nil
	}

	data, err := os.ReadFile(f.StatePath)
	if err != nil {
		return nil, fmt.Errorf("read page state: %w", err)
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode page state: %w", err)
	}
	if snap.URL == "" {
		snap.URL = state.URL
	}
	for k, v := range state.SessionStorage {
		snap.SessionStorage[k] = v
	}
	for k, v := range state.Globals {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode global %s: %w", k, err)
		}
		snap.Globals[k] = string(encoded)
	}
	return snap, nil
}
