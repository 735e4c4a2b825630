package parser

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/gabriel-vasile/mimetype"
)

var plausibleExt = regexp.MustCompile(`^[a-z0-9]{1,5}$`)

// DeriveExtension picks the saved file extension for an asset: the URL path
// suffix when short and plausible, else the declared content type, else the
// role default.
func DeriveExtension(rawURL, contentType string, role models.AssetRole) string {
	if ext := urlExtension(rawURL); ext != "" {
		return ext
	}
	if ext := contentTypeExtension(contentType); ext != "" {
		return ext
	}
	return role.DefaultExtension()
}

func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if !plausibleExt.MatchString(ext) {
		return ""
	}
	return ext
}

func contentTypeExtension(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" {
		return ""
	}
	m := mimetype.Lookup(mediaType)
	if m == nil {
		return ""
	}
	ext := strings.TrimPrefix(m.Extension(), ".")
	if !plausibleExt.MatchString(ext) {
		return ""
	}
	return ext
}
