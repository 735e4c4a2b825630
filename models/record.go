// Package models defines data structures shared by the harvester.
package models

import "strings"

// Identifier names one scrapeable record on the source site.
type Identifier string

// AssetRole is the semantic category of a downloadable file.
type AssetRole string

const (
	RoleCAD          AssetRole = "cad"
	RoleThreeD       AssetRole = "threeD"
	RolePrimaryImage AssetRole = "primaryImage"
	RoleMountImage   AssetRole = "mountImage"
	RolePDF          AssetRole = "pdf"
)

// AssetRoles lists every role in canonical download order.
var AssetRoles = []AssetRole{RoleCAD, RoleThreeD, RolePrimaryImage, RoleMountImage, RolePDF}

// ParseAssetRole matches s against the known roles, ignoring case.
func ParseAssetRole(s string) (AssetRole, bool) {
	s = strings.TrimSpace(s)
	for _, role := range AssetRoles {
		if strings.EqualFold(string(role), s) {
			return role, true
		}
	}
	return "", false
}

// Label is the short name used in archive filenames.
func (r AssetRole) Label() string {
	switch r {
	case RoleCAD:
		return "cad"
	case RoleThreeD:
		return "3d"
	case RolePrimaryImage:
		return "image"
	case RoleMountImage:
		return "mount"
	case RolePDF:
		return "pdf"
	default:
		return string(r)
	}
}

// DefaultExtension is used when neither the URL nor the response names a type.
func (r AssetRole) DefaultExtension() string {
	switch r {
	case RoleCAD:
		return "step"
	case RoleThreeD:
		return "zip"
	case RolePrimaryImage, RoleMountImage:
		return "jpg"
	case RolePDF:
		return "pdf"
	default:
		return "bin"
	}
}

// Field is one label/value row of a detail group.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DetailGroup is a named, ordered mapping of labels to values.
type DetailGroup struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Get returns the value stored under label.
func (g DetailGroup) Get(label string) (string, bool) {
	for _, f := range g.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// Record is the normalised representation of one scraped model. It is built
// once by the fetcher and only read afterwards.
type Record struct {
	ID           Identifier           `json:"id"`
	Title        string               `json:"title"`
	DetailGroups []DetailGroup        `json:"detailGroups"`
	AssetRefs    map[AssetRole]string `json:"assetRefs"`
	RawSpecs     map[string]any       `json:"rawSpecs,omitempty"`
	Source       string               `json:"source"`
}

// AssetURL returns the URL for role when the record offers it.
func (r *Record) AssetURL(role AssetRole) (string, bool) {
	if r == nil || r.AssetRefs == nil {
		return "", false
	}
	u, ok := r.AssetRefs[role]
	if !ok || u == "" {
		return "", false
	}
	return u, true
}

// Roles returns the offered asset roles in canonical order.
func (r *Record) Roles() []AssetRole {
	roles := make([]AssetRole, 0, len(AssetRoles))
	for _, role := range AssetRoles {
		if _, ok := r.AssetURL(role); ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// FieldCount is the number of detail rows across all groups.
func (r *Record) FieldCount() int {
	total := 0
	for _, g := range r.DetailGroups {
		total += len(g.Fields)
	}
	return total
}

// AssetBlob is a downloaded payload. It is handed straight to the archive.
type AssetBlob struct {
	Role        AssetRole
	URL         string
	ContentType string
	Data        []byte
}
