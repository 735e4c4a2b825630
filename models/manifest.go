package models

import "time"

// DiscoveryResult is the de-duplicated identifier list and the strategy that
// produced it.
type DiscoveryResult struct {
	IDs      []Identifier `json:"ids"`
	Strategy string       `json:"strategy"`
}

// Manifest is the JSON document stored at the archive root.
type Manifest struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	TotalCount  int            `json:"totalCount"`
	Models      []*Record      `json:"models"`
	Files       []ManifestFile `json:"files"`
}

// ManifestFile describes one archive entry.
type ManifestFile struct {
	Path   string `json:"path"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}
