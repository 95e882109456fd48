package fetch

import (
	"mime"
	"strconv"
	"strings"
)

// MimeClass is a named group of media types used to build Accept headers
type MimeClass string

const (
	ClassDataCiteJSON    MimeClass = "datacite-json"
	ClassSchemaOrgJSONLD MimeClass = "schemaorg-jsonld"
	ClassJSONLD          MimeClass = "jsonld"
	ClassRDF             MimeClass = "rdf-any"
	ClassXML             MimeClass = "xml"
	ClassHTML            MimeClass = "html"
	ClassJSON            MimeClass = "json"
	ClassLinkset         MimeClass = "linkset"
	ClassAtom            MimeClass = "atom"
	ClassPlain           MimeClass = "plain"
	ClassAny             MimeClass = "any"
)

var classTypes = map[MimeClass][]string{
	ClassDataCiteJSON:    {"application/vnd.datacite.datacite+json"},
	ClassSchemaOrgJSONLD: {"application/vnd.schemaorg.ld+json", "application/ld+json"},
	ClassJSONLD:          {"application/ld+json"},
	ClassRDF: {
		"text/turtle", "application/turtle", "application/x-turtle",
		"application/rdf+xml", "application/n-triples", "application/n-quads",
		"application/ld+json",
	},
	ClassXML:     {"application/xml", "text/xml"},
	ClassHTML:    {"text/html", "application/xhtml+xml"},
	ClassJSON:    {"application/json"},
	ClassLinkset: {"application/linkset+json", "application/linkset"},
	ClassAtom:    {"application/atom+xml"},
	ClassPlain:   {"text/plain"},
	ClassAny:     {"*/*"},
}

// Types returns the media types of a class
func (c MimeClass) Types() []string {
	return classTypes[c]
}

// AcceptHeader concatenates the media types of the classes in preference order.
// Later classes get decreasing q-values; duplicates keep their first position.
func AcceptHeader(classes ...MimeClass) string {
	if len(classes) == 0 {
		classes = []MimeClass{ClassAny}
	}

	seen := make(map[string]bool)
	var parts []string
	for i, class := range classes {
		q := 1.0 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		for _, t := range classTypes[class] {
			if seen[t] {
				continue
			}
			seen[t] = true
			if i == 0 {
				parts = append(parts, t)
				continue
			}
			parts = append(parts, t+";q="+strconv.FormatFloat(q, 'f', 1, 64))
		}
	}
	return strings.Join(parts, ", ")
}

// MediaType returns the lowercased media type of a Content-Type header value
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}

// ClassOf returns the most specific class a media type belongs to
func ClassOf(contentType string) MimeClass {
	mt := MediaType(contentType)
	switch {
	case mt == "":
		return ""
	case mt == "application/vnd.datacite.datacite+json":
		return ClassDataCiteJSON
	case mt == "application/vnd.schemaorg.ld+json":
		return ClassSchemaOrgJSONLD
	case mt == "application/ld+json":
		return ClassJSONLD
	case mt == "application/linkset+json" || mt == "application/linkset":
		return ClassLinkset
	case mt == "application/atom+xml":
		return ClassAtom
	case mt == "text/html" || mt == "application/xhtml+xml":
		return ClassHTML
	case contains(classTypes[ClassRDF], mt) || mt == "text/n3" || mt == "application/trig":
		return ClassRDF
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return ClassJSON
	case mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml"):
		return ClassXML
	case mt == "text/plain":
		return ClassPlain
	default:
		return ""
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
