package extract

import (
	"strconv"
	"strings"

	"github.com/ppiankov/fairmeter/internal/model"
)

// defaultListKeys stay lists in a fragment; other keys are joined into one string
var defaultListKeys = map[model.Key]bool{
	model.KeyObjectIdentifier: true,
	model.KeyCreator:          true,
	model.KeyContributor:      true,
	model.KeyKeywords:         true,
	model.KeyLicense:          true,
	model.KeyAccessLevel:      true,
	model.KeyMeasuredVariable: true,
}

var (
	nameOrder = []string{"@value", "name", "value", "@id", "url", "identifier", "title", "subject"}
	idOrder   = []string{"@id", "value", "url", "identifier", "contentUrl", "@value", "name"}
)

// toProperties converts projected values into typed properties
func toProperties(raw map[model.Key]any, listKeys map[model.Key]bool) model.Properties {
	props := model.Properties{}
	for k, v := range raw {
		switch k {
		case model.KeyObjectContentIdentifier:
			if items := contentItems(v); len(items) > 0 {
				props[k] = items
			}
		case model.KeyRelatedResources:
			if rels, ok := v.([]model.RelatedResource); ok && len(rels) > 0 {
				props[k] = rels
			}
		case model.KeyObjectIdentifier, model.KeyLandingPage, model.KeyCodeRepository:
			setStrings(props, k, identifierValues(v), listKeys[k])
		default:
			setStrings(props, k, stringValues(v), listKeys[k])
		}
	}
	return props
}

func setStrings(props model.Properties, k model.Key, vals []string, list bool) {
	vals = dedupe(vals)
	switch {
	case len(vals) == 0:
	case list:
		props[k] = vals
	default:
		props[k] = strings.Join(vals, ", ")
	}
}

// stringValues flattens a decoded JSON value into display strings
func stringValues(v any) []string {
	return flatten(v, nameOrder)
}

// identifierValues flattens a decoded JSON value into identifiers or URLs
func identifierValues(v any) []string {
	return flatten(v, idOrder)
}

func flatten(v any, order []string) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(t)}
	case []string:
		var out []string
		for _, s := range t {
			out = append(out, flatten(s, order)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, flatten(item, order)...)
		}
		return out
	case map[string]any:
		if name := personName(t); name != "" && order[0] != "@id" {
			return []string{name}
		}
		for _, k := range order {
			if inner, ok := t[k]; ok {
				if out := flatten(inner, order); len(out) > 0 {
					return out
				}
			}
		}
		return nil
	default:
		return nil
	}
}

// personName returns name, or given and family name combined
func personName(m map[string]any) string {
	if s, ok := m["name"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	given, _ := m["givenName"].(string)
	family, _ := m["familyName"].(string)
	return strings.TrimSpace(strings.TrimSpace(given) + " " + strings.TrimSpace(family))
}

// contentItems reads data links from strings or download objects
func contentItems(v any) []model.ContentItem {
	var items []model.ContentItem
	switch t := v.(type) {
	case []model.ContentItem:
		return t
	case string:
		if s := strings.TrimSpace(t); s != "" {
			items = append(items, model.ContentItem{URL: s})
		}
	case []any:
		for _, e := range t {
			items = append(items, contentItems(e)...)
		}
	case map[string]any:
		item := model.ContentItem{
			URL:         first(identifierValues(pick(t, "contentUrl", "url", "downloadUrl", "@id"))),
			Name:        first(stringValues(t["name"])),
			ClaimedType: first(stringValues(pick(t, "encodingFormat", "fileFormat", "mediaType"))),
			ClaimedSize: first(stringValues(pick(t, "contentSize", "size", "byteSize"))),
		}
		if item.URL != "" {
			items = append(items, item)
		}
	}
	return items
}

func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && !empty(v) {
			return v
		}
	}
	return nil
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := vals[:0:0]
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// addValue appends a value to a raw property, keeping insertion order
func addValue(raw map[model.Key]any, k model.Key, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	switch cur := raw[k].(type) {
	case nil:
		raw[k] = []any{v}
	case []any:
		raw[k] = append(cur, v)
	}
}
