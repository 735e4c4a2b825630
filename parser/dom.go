package parser

import (
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/andybalholm/cascadia"
)

// DOMExtractor reads a record out of page markup when no API answers.
type DOMExtractor struct {
	scopes      []string
	title       cascadia.Selector
	spec        cascadia.Selector
	specLabel   cascadia.Selector
	specValue   cascadia.Selector
	image       cascadia.Selector
	fileLink    cascadia.Selector
	placeholder string
	groupName   string
}

// NewDOMExtractor compiles the configured selectors once.
func NewDOMExtractor(cfg config.FetchConfig) (*DOMExtractor, error) {
	e := &DOMExtractor{
		scopes:      cfg.ScopeSelectors,
		placeholder: strings.ToLower(cfg.PlaceholderMarker),
		groupName:   cfg.DOMGroupName,
	}
	if e.groupName == "" {
		e.groupName = "specifications"
	}

	compile := func(name, sel string) (cascadia.Selector, error) {
		s, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("compile %s selector %q: %w", name, sel, err)
		}
		return s, nil
	}

	var err error
	if e.title, err = compile("title", cfg.TitleSelector); err != nil {
		return nil, err
	}
	if e.spec, err = compile("spec", cfg.SpecSelector); err != nil {
		return nil, err
	}
	if e.specLabel, err = compile("spec label", cfg.SpecLabelSelector); err != nil {
		return nil, err
	}
	if e.specValue, err = compile("spec value", cfg.SpecValueSelector); err != nil {
		return nil, err
	}
	if e.image, err = compile("image", cfg.ImageSelector); err != nil {
		return nil, err
	}
	if e.fileLink, err = compile("file link", cfg.FileLinkSelector); err != nil {
		return nil, err
	}
	return e, nil
}

// Extract returns nil when the page holds nothing for id: no heading, no
// label/value pairs and no asset links.
func (e *DOMExtractor) Extract(doc *goquery.Document, id models.Identifier, resolve Resolver) *models.Record {
	if doc == nil {
		return nil
	}
	root := e.scope(doc, id)

	title := NormalizeText(root.FindMatcher(e.title).First().Text())

	fields := []models.Field{}
	root.FindMatcher(e.spec).Each(func(_ int, s *goquery.Selection) {
		label := NormalizeLabel(s.FindMatcher(e.specLabel).First().Text())
		value := NormalizeText(s.FindMatcher(e.specValue).Last().Text())
		if label != "" && value != "" {
			fields = append(fields, models.Field{Label: label, Value: value})
		}
	})

	refs := map[models.AssetRole]string{}
	imageRoles := []models.AssetRole{models.RolePrimaryImage, models.RoleMountImage}
	next := 0
	root.FindMatcher(e.image).Each(func(_ int, s *goquery.Selection) {
		if next >= len(imageRoles) {
			return
		}
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" || strings.HasPrefix(src, "data:") {
			src, _ = s.Attr("data-src")
		}
		if src == "" || (e.placeholder != "" && strings.Contains(strings.ToLower(src), e.placeholder)) {
			return
		}
		abs, ok := resolve(src)
		if !ok || containsValue(refs, abs) {
			return
		}
		refs[imageRoles[next]] = abs
		next++
	})

	root.FindMatcher(e.fileLink).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		role, ok := roleForLink(href)
		if !ok {
			return
		}
		if _, taken := refs[role]; taken {
			return
		}
		if abs, ok := resolve(href); ok {
			refs[role] = abs
		}
	})

	if title == "" && len(fields) == 0 && len(refs) == 0 {
		return nil
	}
	if title == "" {
		title = DefaultTitle(id)
	}

	return &models.Record{
		ID:           id,
		Title:        title,
		DetailGroups: []models.DetailGroup{{Name: e.groupName, Fields: fields}},
		AssetRefs:    refs,
		Source:       "dom",
	}
}

// scope narrows extraction to the element that belongs to id, if any.
func (e *DOMExtractor) scope(doc *goquery.Document, id models.Identifier) *goquery.Selection {
	for _, tmpl := range e.scopes {
		sel := strings.ReplaceAll(tmpl, "{id}", cssEscape(string(id)))
		m, err := cascadia.Compile(sel)
		if err != nil {
			continue
		}
		if found := doc.FindMatcher(m).First(); found.Length() > 0 {
			return found
		}
	}
	return doc.Selection
}

func roleForLink(href string) (models.AssetRole, bool) {
	ext := strings.ToLower(path.Ext(strings.SplitN(strings.SplitN(href, "?", 2)[0], "#", 2)[0]))
	switch ext {
	case ".stp", ".step", ".igs", ".iges", ".dwg", ".dxf":
		return models.RoleCAD, true
	case ".zip", ".rar", ".7z", ".stl", ".obj":
		return models.RoleThreeD, true
	case ".pdf":
		return models.RolePDF, true
	default:
		return "", false
	}
}

func containsValue(m map[models.AssetRole]string, v string) bool {
	for _, existing := range m {
		if existing == v {
			return true
		}
	}
	return false
}

// cssEscape keeps an identifier safe inside a quoted attribute selector.
func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`).Replace(s)
}
