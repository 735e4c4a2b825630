// Package page captures a read-only snapshot of the host page that the
// harvester works against.
package page

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Source produces one snapshot per pipeline run.
type Source interface {
	Capture(ctx context.Context) (*Snapshot, error)
}

// Snapshot is the host page state taken once per run. Treat it as read-only.
type Snapshot struct {
	URL            string            `json:"url"`
	HTML           string            `json:"-"`
	SessionStorage map[string]string `json:"sessionStorage"`
	Globals        map[string]string `json:"globals"`

	docOnce sync.Once
	doc     *goquery.Document
	docErr  error

	fpOnce      sync.Once
	fingerprint string
}

// Document parses HTML on first use.
func (s *Snapshot) Document() (*goquery.Document, error) {
	s.docOnce.Do(func() {
		s.doc, s.docErr = goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
		if s.docErr != nil {
			s.docErr = fmt.Errorf("parse page html: %w", s.docErr)
		}
	})
	return s.doc, s.docErr
}

// Fingerprint identifies the captured page: its URL and markup. Two
// snapshots of an unchanged page share a fingerprint.
func (s *Snapshot) Fingerprint() string {
	s.fpOnce.Do(func() {
		h := sha256.New()
		h.Write([]byte(s.URL))
		h.Write([]byte{0})
		h.Write([]byte(s.HTML))
		s.fingerprint = hex.EncodeToString(h.Sum(nil))
	})
	return s.fingerprint
}

// Origin returns scheme://host of the page URL, or "" when unknown.
func (s *Snapshot) Origin() string {
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Resolve makes ref absolute against the page origin.
func (s *Snapshot) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return "", false
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if parsed.IsAbs() {
		return parsed.String(), true
	}
	base, err := url.Parse(s.Origin())
	if err != nil || base.Host == "" {
		return "", false
	}
	return base.ResolveReference(parsed).String(), true
}

// Query returns the page URL's query parameters.
func (s *Snapshot) Query() url.Values {
	u, err := url.Parse(s.URL)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

// Path returns the page URL's path.
func (s *Snapshot) Path() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

// Session reads a non-empty session storage value.
func (s *Snapshot) Session(key string) (string, bool) {
	if key == "" || s.SessionStorage == nil {
		return "", false
	}
	v, ok := s.SessionStorage[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Labels returns the two display names used in the archive filename.
// Session values stored as JSON strings are decoded.
func (s *Snapshot) Labels(groupKey, subGroupKey, defaultGroup, defaultSubGroup string) (string, string) {
	group := defaultGroup
	if v, ok := s.Session(groupKey); ok {
		group = jsonString(v)
	}
	sub := defaultSubGroup
	if v, ok := s.Session(subGroupKey); ok {
		sub = jsonString(v)
	}
	return group, sub
}

func jsonString(v string) string {
	if gjson.Valid(v) {
		if r := gjson.Parse(v); r.Type == gjson.String {
			return r.String()
		}
	}
	return v
}
