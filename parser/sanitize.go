package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxNameRunes = 120

var unsafeName = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f\x7f]`)

// SanitizeName replaces every filesystem-unsafe character with "_".
func SanitizeName(name string) string {
	name = unsafeName.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, ". ")
	if utf8.RuneCountInString(name) > maxNameRunes {
		runes := []rune(name)
		name = strings.TrimRight(string(runes[:maxNameRunes]), ". ")
	}
	if name == "" {
		return "_"
	}
	return name
}

// FolderName is the per-record folder: {title}_{id}.
func FolderName(title, id string) string {
	return SanitizeName(title + "_" + id)
}
