// Package parser turns raw API payloads and page markup into records.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-harvest-models/models"
)

// ValidateRecord ensures a fetched record is usable by the archive.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(string(r.ID)) == "" {
		return fmt.Errorf("record missing id")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record %s missing title", r.ID)
	}
	if r.DetailGroups == nil {
		return fmt.Errorf("record %s has nil detail groups", r.ID)
	}
	for role, ref := range r.AssetRefs {
		if ref == "" {
			continue
		}
		u, err := url.Parse(ref)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("record %s has relative %s url %q", r.ID, role, ref)
		}
	}
	return nil
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeText collapses internal whitespace and trims the ends.
func NormalizeText(text string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}

// NormalizeLabel trims a detail label and its trailing colon.
func NormalizeLabel(label string) string {
	label = NormalizeText(label)
	label = strings.TrimSuffix(label, ":")
	label = strings.TrimSuffix(label, "：")
	return strings.TrimSpace(label)
}

// DefaultTitle is the placeholder used when the source has no name.
func DefaultTitle(id models.Identifier) string {
	return fmt.Sprintf("Model %s", id)
}
