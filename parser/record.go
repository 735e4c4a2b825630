package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/tidwall/gjson"
)

// ErrNotJSON is returned for a success response whose body is not JSON.
var ErrNotJSON = errors.New("parser: body is not json")

// ErrAPIStatus is returned when an envelope carries a non-zero code.
var ErrAPIStatus = errors.New("parser: api reported failure")

// Resolver turns a possibly relative reference into an absolute URL.
type Resolver func(ref string) (string, bool)

// RecordFromJSON normalises one detail response into a record. Missing fields
// fall back to the defaults: a placeholder title and empty detail groups.
func RecordFromJSON(id models.Identifier, body []byte, rules config.FetchConfig, resolve Resolver) (*models.Record, error) {
	data, err := Unwrap(body)
	if err != nil {
		return nil, err
	}

	rec := &models.Record{
		ID:           id,
		Title:        firstString(data, rules.TitlePaths),
		DetailGroups: []models.DetailGroup{},
		AssetRefs:    map[models.AssetRole]string{},
		RawSpecs:     rawSpecs(data, rules.StripKeys),
		Source:       "api",
	}
	if rec.Title == "" {
		rec.Title = DefaultTitle(id)
	}

	for _, group := range rules.DetailGroups {
		for _, p := range group.Paths {
			res := data.Get(p)
			if !res.Exists() {
				continue
			}
			rec.DetailGroups = append(rec.DetailGroups, models.DetailGroup{
				Name:   group.Name,
				Fields: fieldsOf(res),
			})
			break
		}
	}

	for _, asset := range rules.AssetPaths {
		role, ok := models.ParseAssetRole(asset.Name)
		if !ok {
			continue
		}
		ref := firstString(data, asset.Paths)
		if ref == "" {
			continue
		}
		if abs, ok := resolve(ref); ok {
			rec.AssetRefs[role] = abs
		}
	}

	return rec, nil
}

// Unwrap validates body and returns the payload object. Envelopes shaped like
// {"code":0,"data":{...}} yield their data member.
func Unwrap(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrNotJSON
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() && !root.IsArray() {
		return gjson.Result{}, ErrNotJSON
	}

	code := root.Get("code")
	data := root.Get("data")
	if code.Exists() && data.Exists() {
		if code.Int() != 0 && code.String() != "200" {
			return gjson.Result{}, fmt.Errorf("%w: code %s: %s", ErrAPIStatus, code.String(), root.Get("msg").String())
		}
		if data.IsObject() {
			return data, nil
		}
	}
	return root, nil
}

// IDsAt collects identifiers found at any of paths, in document order.
func IDsAt(root gjson.Result, paths []string) []models.Identifier {
	var ids []models.Identifier
	for _, p := range paths {
		res := root.Get(p)
		if !res.Exists() {
			continue
		}
		if res.IsArray() {
			for _, item := range res.Array() {
				if s := scalarString(item); s != "" {
					ids = append(ids, models.Identifier(s))
				}
			}
		} else if s := scalarString(res); s != "" {
			ids = append(ids, models.Identifier(s))
		}
		if len(ids) > 0 {
			return ids
		}
	}
	return ids
}

// FirstString returns the first non-empty scalar at any of paths.
func FirstString(root gjson.Result, paths []string) string {
	return firstString(root, paths)
}

func firstString(root gjson.Result, paths []string) string {
	for _, p := range paths {
		if s := scalarString(root.Get(p)); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(res gjson.Result) string {
	switch res.Type {
	case gjson.String, gjson.Number:
		return strings.TrimSpace(res.String())
	default:
		return ""
	}
}

// fieldsOf reads an object (source order kept) or an array of
// {label|name|key, value} objects.
func fieldsOf(res gjson.Result) []models.Field {
	fields := []models.Field{}
	switch {
	case res.IsObject():
		res.ForEach(func(key, value gjson.Result) bool {
			label := NormalizeLabel(key.String())
			if label != "" {
				fields = append(fields, models.Field{Label: label, Value: valueText(value)})
			}
			return true
		})
	case res.IsArray():
		for _, item := range res.Array() {
			label := NormalizeLabel(firstString(item, []string{"label", "name", "key", "attrName"}))
			if label == "" {
				continue
			}
			value := item.Get("value")
			if !value.Exists() {
				value = item.Get("attrValue")
			}
			fields = append(fields, models.Field{Label: label, Value: valueText(value)})
		}
	}
	return fields
}

func valueText(v gjson.Result) string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.IsArray():
		parts := make([]string, 0, len(v.Array()))
		for _, item := range v.Array() {
			parts = append(parts, valueText(item))
		}
		return strings.Join(parts, ", ")
	case v.IsObject():
		return v.Raw
	default:
		return NormalizeText(v.String())
	}
}

func rawSpecs(data gjson.Result, strip []string) map[string]any {
	if !data.IsObject() {
		return nil
	}
	skip := make(map[string]struct{}, len(strip))
	for _, k := range strip {
		skip[k] = struct{}{}
	}
	out := map[string]any{}
	data.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if _, ok := skip[k]; ok || strings.HasPrefix(k, "_") {
			return true
		}
		out[k] = value.Value()
		return true
	})
	return out
}
