package harvest

import (
	"github.com/ppiankov/fairmeter/internal/model"
)

// Merge flattens fragments into one record. Keys are filled first-writer-wins
// in fragment order; list keys are appended and de-duplicated. Every key of
// the result lists the fragment tags that contributed it.
func Merge(fragments []model.MetadataFragment) model.MergedMetadata {
	merged := model.MergedMetadata{Properties: model.Properties{}, Sources: map[model.Key][]string{}}

	pending := make(map[model.Key]bool, len(model.ReferenceVocabulary))
	for _, k := range model.ReferenceVocabulary {
		pending[k] = true
	}

	for _, f := range fragments {
		for _, k := range f.Properties.Keys() {
			v := f.Properties[k]
			switch {
			case model.ListKeys[k]:
				if appendList(merged.Properties, k, v) {
					merged.Sources[k] = appendUnique(merged.Sources[k], f.Tag)
				}
			case pending[k]:
				merged.Properties[k] = v
				merged.Sources[k] = []string{f.Tag}
				delete(pending, k)
			}
		}
	}
	return merged
}

// appendList adds the values of v to the list at k and reports whether anything new was added
func appendList(props model.Properties, k model.Key, v any) bool {
	switch t := v.(type) {
	case []model.ContentItem:
		cur := append([]model.ContentItem(nil), props.ContentItems()...)
		seen := make(map[string]bool, len(cur))
		for _, it := range cur {
			seen[it.URL] = true
		}
		added := false
		for _, it := range t {
			if it.URL == "" || seen[it.URL] {
				continue
			}
			seen[it.URL] = true
			cur = append(cur, it)
			added = true
		}
		if added {
			props[k] = cur
		}
		return added
	case []model.RelatedResource:
		cur := append([]model.RelatedResource(nil), props.RelatedResources()...)
		seen := make(map[model.RelatedResource]bool, len(cur))
		for _, r := range cur {
			seen[r] = true
		}
		added := false
		for _, r := range t {
			if r.Identifier == "" || seen[r] {
				continue
			}
			seen[r] = true
			cur = append(cur, r)
			added = true
		}
		if added {
			props[k] = cur
		}
		return added
	default:
		cur := append([]string(nil), props.Strings(k)...)
		before := len(cur)
		incoming := model.Properties{k: v}
		for _, s := range incoming.Strings(k) {
			cur = appendUnique(cur, s)
		}
		if len(cur) > before {
			props[k] = cur
			return true
		}
		return false
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
