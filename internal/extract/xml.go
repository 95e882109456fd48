package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
)

// XSINamespace is the XML Schema instance namespace
const XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

// XMLCollector validates XML documents and records their namespaces. Content
// is not mapped.
type XMLCollector struct{}

// Name returns the collector tag
func (c *XMLCollector) Name() string { return TagXML }

// CanHandle accepts XML media types and untyped bodies starting with an XML declaration
func (c *XMLCollector) CanHandle(in *Input) bool {
	switch in.Class() {
	case fetch.ClassXML, fetch.ClassAtom:
		return true
	case "":
		return bytes.HasPrefix(bytes.TrimSpace(in.Body), []byte("<?xml"))
	}
	return false
}

// Collect parses the whole document and records element, xmlns and
// xsi:schemaLocation namespaces
func (c *XMLCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	info, err := scanXML(in.Body)
	if err != nil {
		return nil, apperr.Parse("xml", err)
	}

	frag := newFragment(TagXML, FormatXML, in)
	frag.Schema = info.root.Space
	frag.Namespaces = info.namespaces
	return frag, nil
}

type xmlInfo struct {
	root       xml.Name
	namespaces []string
	locations  []string
}

func newXMLDecoder(body []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

func scanXML(body []byte) (xmlInfo, error) {
	var info xmlInfo
	seen := make(map[string]bool)
	add := func(ns string) {
		ns = strings.TrimSpace(ns)
		if ns != "" && !seen[ns] {
			seen[ns] = true
			info.namespaces = append(info.namespaces, ns)
		}
	}

	dec := newXMLDecoder(body)
	started := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return info, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !started {
			info.root = start.Name
			started = true
		}
		add(start.Name.Space)
		for _, a := range start.Attr {
			switch {
			case a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns"):
				add(a.Value)
			case a.Name.Space == XSINamespace && a.Name.Local == "schemaLocation":
				fields := strings.Fields(a.Value)
				for i := 0; i+1 < len(fields); i += 2 {
					add(fields[i])
					info.locations = append(info.locations, fields[i+1])
				}
			case a.Name.Space == XSINamespace && a.Name.Local == "noNamespaceSchemaLocation":
				info.locations = append(info.locations, a.Value)
			}
		}
	}
	if !started {
		return info, errors.New("no root element")
	}
	sort.Strings(info.namespaces)
	return info, nil
}

// XMLNamespaces returns the sorted namespaces an XML document declares or uses
func XMLNamespaces(body []byte) ([]string, error) {
	info, err := scanXML(body)
	if err != nil {
		return nil, apperr.Parse("xml", err)
	}
	return info.namespaces, nil
}

// rootElement returns the name of the first element
func rootElement(body []byte) (xml.Name, error) {
	dec := newXMLDecoder(body)
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.Name{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name, nil
		}
	}
}
