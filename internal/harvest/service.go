package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/extract"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/model"
)

const sparqlAsk = "PREFIX dcat: <http://www.w3.org/ns/dcat#> ASK { ?s a dcat:Dataset }"

// service probes the metadata service given with the run, if any
func (h *Harvester) service(ctx context.Context, r *run) {
	if r.opts.ServiceURL == "" {
		return
	}
	log := logging.ForMetric(h.logger, MetricSearchable)
	info, err := h.ProbeService(ctx, r.opts.ServiceURL, r.opts.ServiceType)
	if err != nil {
		log.Warn("metadata service probe failed", zap.String("url", r.opts.ServiceURL), zap.String("type", r.opts.ServiceType), zap.Error(err))
	}
	if info == nil {
		return
	}
	r.state.Service = info
	if !info.Available {
		log.Info("metadata service not available", zap.String("url", info.URL), zap.String("type", info.Type))
		return
	}

	log.Info("metadata service available", zap.String("url", info.URL), zap.String("type", info.Type), zap.Int("namespaces", len(info.Namespaces)))
	r.extra = append(r.extra, info.Namespaces...)
	format := extract.FormatXML
	if info.Type == model.ServiceSPARQL {
		format = extract.FormatJSON
	}
	r.state.addFragment(&model.MetadataFragment{
		Tag:        info.Type,
		SourceURL:  info.URL,
		Format:     format,
		Namespaces: info.Namespaces,
		Properties: model.Properties{},
	}, model.MethodMetadataService)
}

// ProbeService checks a metadata service endpoint and lists the metadata
// namespaces it offers. An unknown service type is an error.
func (h *Harvester) ProbeService(ctx context.Context, endpoint, kind string) (*ServiceInfo, error) {
	info := &ServiceInfo{URL: endpoint, Type: kind}
	var (
		probe string
		parse func([]byte) ([]string, error)
		req   fetch.Request
	)
	switch kind {
	case model.ServiceOAIPMH:
		probe = withQuery(endpoint, url.Values{"verb": {"ListMetadataFormats"}})
		parse = oaiFormats
		req = fetch.Request{URL: probe, Classes: []fetch.MimeClass{fetch.ClassXML}}
	case model.ServiceOGCCSW:
		probe = withQuery(endpoint, url.Values{"service": {"CSW"}, "request": {"GetCapabilities"}})
		parse = cswSchemas
		req = fetch.Request{URL: probe, Classes: []fetch.MimeClass{fetch.ClassXML}}
	case model.ServiceSPARQL:
		probe = withQuery(endpoint, url.Values{"query": {sparqlAsk}})
		parse = sparqlAnswer
		req = fetch.Request{URL: probe, Accept: "application/sparql-results+json"}
	default:
		return nil, fmt.Errorf("unsupported metadata service type %q", kind)
	}

	resp, err := h.negotiator.Do(ctx, req)
	if err != nil {
		return info, err
	}
	namespaces, err := parse(resp.Body)
	if err != nil {
		return info, err
	}
	info.Available = true
	info.Namespaces = namespaces
	return info, nil
}

func withQuery(endpoint string, q url.Values) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	values := u.Query()
	for k, v := range q {
		values[k] = v
	}
	u.RawQuery = values.Encode()
	return u.String()
}

// oaiFormats reads an OAI-PMH ListMetadataFormats response
func oaiFormats(body []byte) ([]string, error) {
	var doc struct {
		Error   string `xml:"error"`
		Formats []struct {
			Prefix    string `xml:"metadataPrefix"`
			Schema    string `xml:"schema"`
			Namespace string `xml:"metadataNamespace"`
		} `xml:"ListMetadataFormats>metadataFormat"`
	}
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid OAI-PMH response: %w", err)
	}
	if doc.Error != "" {
		return nil, fmt.Errorf("OAI-PMH error: %s", strings.TrimSpace(doc.Error))
	}
	if len(doc.Formats) == 0 {
		return nil, errors.New("OAI-PMH response lists no metadata formats")
	}
	var out []string
	for _, f := range doc.Formats {
		out = appendNS(out, f.Namespace, f.Schema)
	}
	return sortedSet(out), nil
}

// cswSchemas reads the namespaces and output schemas of a CSW capabilities document
func cswSchemas(body []byte) ([]string, error) {
	namespaces, err := extract.XMLNamespaces(body)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	var out []string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		t, ok := tok.(xml.StartElement)
		if !ok || (t.Name.Local != "Parameter" && t.Name.Local != "Domain") {
			continue
		}
		for _, a := range t.Attr {
			if a.Name.Local == "name" && strings.EqualFold(a.Value, "outputSchema") {
				out = captureValues(dec, t.Name.Local, out)
				break
			}
		}
	}
	return sortedSet(append(namespaces, out...)), nil
}

// captureValues collects the text of Value children until the end of the named element
func captureValues(dec *xml.Decoder, parent string, out []string) []string {
	var inValue bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inValue = t.Name.Local == "Value"
		case xml.CharData:
			if inValue {
				out = appendNS(out, strings.TrimSpace(string(t)))
			}
		case xml.EndElement:
			inValue = false
			if t.Name.Local == parent {
				return out
			}
		}
	}
}

// sparqlAnswer reads a SPARQL ASK result
func sparqlAnswer(body []byte) ([]string, error) {
	var res struct {
		Boolean *bool `json:"boolean"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("invalid SPARQL result: %w", err)
	}
	if res.Boolean == nil {
		return nil, errors.New("SPARQL result has no boolean answer")
	}
	if !*res.Boolean {
		return nil, nil
	}
	return []string{"http://www.w3.org/ns/dcat#"}, nil
}

func appendNS(list []string, values ...string) []string {
	for _, v := range values {
		if v != "" {
			list = append(list, v)
		}
	}
	return list
}

func sortedSet(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
