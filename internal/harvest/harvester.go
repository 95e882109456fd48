package harvest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/extract"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/metrics"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// negotiation rounds, in order
var negotiationRounds = [][]fetch.MimeClass{
	{fetch.ClassRDF},
	{fetch.ClassSchemaOrgJSONLD, fetch.ClassJSONLD},
	{fetch.ClassXML},
}

// relations whose targets may be metadata documents
var metadataRels = []string{"describedby", "alternate", "meta"}

// Options are the per-run harvest switches
type Options struct {
	UseDataCite bool
	UseGitHub   bool
	VerifyPIDs  bool
	ServiceURL  string
	ServiceType string
	Auth        *model.Auth
}

// OptionsFor derives harvest options from a run request
func OptionsFor(req model.RunRequest) Options {
	return Options{
		UseDataCite: req.UseDataCite,
		UseGitHub:   req.UseGitHub,
		VerifyPIDs:  req.VerifyPIDs,
		ServiceURL:  req.MetadataServiceURL,
		ServiceType: req.MetadataServiceType,
		Auth:        req.Auth,
	}
}

// Harvester runs the metadata harvest pipeline for one identifier
type Harvester struct {
	negotiator *fetch.Negotiator
	resolver   *identifier.Resolver
	classifier *identifier.Classifier
	collectors *extract.Registry
	data       *DataHarvester
	cfg        model.HarvestConfig
	logger     *zap.Logger
}

// New creates a harvester. The negotiator carries the run's logger, auth and cache.
func New(n *fetch.Negotiator, ref *refdata.Provider, collectors *extract.Registry, cfg model.Config, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collectors == nil {
		collectors = extract.NewRegistry(ref, extract.WithHTTPClient(n.Client()))
	}
	classifier := identifier.NewClassifier(ref)
	hcfg := cfg.Harvest
	if hcfg.LinkWorkers <= 0 {
		hcfg.LinkWorkers = 4
	}
	if hcfg.MaxTypedLinks <= 0 {
		hcfg.MaxTypedLinks = 20
	}
	return &Harvester{
		negotiator: n,
		resolver:   identifier.NewResolver(classifier, n, logger),
		classifier: classifier,
		collectors: collectors,
		data:       NewDataHarvester(n, classifier, cfg.Data, logger),
		cfg:        hcfg,
		logger:     logger,
	}
}

// run holds the bookkeeping of one harvest
type run struct {
	state    *State
	opts     Options
	inputRec model.PidRecord
	extra    []string
	tried    map[string]bool
	seenDocs map[string]bool
}

// try marks a (url, accept) pair as requested; false when it already was
func (r *run) try(url, accept string) bool {
	key := url + " " + accept
	if r.tried[key] {
		return false
	}
	r.tried[key] = true
	return true
}

func (r *run) seen(resp *fetch.Response) bool {
	key := resp.FinalURL + " " + fetch.MediaType(resp.ContentType)
	if r.seenDocs[key] {
		return true
	}
	r.seenDocs[key] = true
	return false
}

// Harvest collects metadata for id. It never fails: network and parse problems
// are logged against the affected metric and the state holds what was found.
// A cancelled context stops the pipeline between steps.
func (h *Harvester) Harvest(ctx context.Context, id model.Identifier, opts Options) *State {
	r := &run{
		state:    NewState(id),
		opts:     opts,
		tried:    make(map[string]bool),
		seenDocs: make(map[string]bool),
	}

	steps := []struct {
		name string
		fn   func(context.Context, *run)
	}{
		{"resolve", h.resolve},
		{"landing", h.landing},
		{"negotiate", h.negotiateAll},
		{"registry", h.registry},
		{"typed_links", h.typedLinks},
		{"resource_map", h.resourceMap},
		{"service", h.service},
		{"pids", h.discoverPIDs},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			h.logger.Warn("harvest cancelled", zap.String("step", step.name), zap.Error(err))
			break
		}
		step.fn(ctx, r)
	}

	r.state.remerge(r.extra)
	if ctx.Err() == nil {
		h.sampleData(ctx, r.state)
	}
	h.logger.Info("harvest finished",
		zap.Int("fragments", len(r.state.Fragments)),
		zap.Int("pids", r.state.PIDs.Len()),
		zap.Int("namespaces", len(r.state.Namespaces)))
	return r.state
}

// resolve fetches the landing page of the input identifier
func (h *Harvester) resolve(ctx context.Context, r *run) {
	s := r.state
	s.OriginURL = s.Input.ResolverURL
	log := logging.ForMetric(h.logger, MetricPersistentID)

	if s.Input.ResolverURL == "" {
		log.Warn("identifier is not resolvable", zap.String("identifier", s.Input.Normalized), zap.String("scheme", string(s.Input.Scheme)))
		r.inputRec = model.PidRecord{PID: s.Input.Normalized, Scheme: s.Input.Scheme, IsPersistent: s.Input.IsPersistent}
		return
	}

	rec, resp, err := h.resolver.Resolve(ctx, s.Input)
	if resp != nil && r.opts.Auth != nil {
		resp, err = h.authorize(ctx, resp, err, r.opts.Auth)
		rec.Resolvable = resp.OK()
	}
	r.inputRec = rec
	r.try(s.Input.ResolverURL, fetch.AcceptHeader(fetch.ClassHTML, fetch.ClassAny))
	if resp == nil || !resp.OK() {
		log.Warn("landing page inaccessible", zap.String("url", s.Input.ResolverURL), zap.Error(err))
		if err != nil {
			s.Errors = append(s.Errors, err.Error())
		}
		return
	}

	s.Landing = resp
	s.LandingURL = resp.FinalURL
	s.LandingAccessible = true
	s.Links = append(s.Links, resp.Links...)
	log.Info("identifier resolved", zap.String("landing_url", s.LandingURL), zap.Ints("status_chain", resp.StatusChain))
	if len(fetch.Signposting(resp.Links, s.LandingURL)) > 0 {
		logging.ForMetric(h.logger, MetricSearchable).Info("signposting links found in HTTP header", zap.Int("count", len(resp.Links)))
	}
}

// authorize sends the credentials to the landing host for the rest of the run
// and repeats a landing request the host refused
func (h *Harvester) authorize(ctx context.Context, resp *fetch.Response, err error, auth *model.Auth) (*fetch.Response, error) {
	u, perr := url.Parse(resp.FinalURL)
	if perr != nil || u.Hostname() == "" {
		return resp, err
	}
	n := h.negotiator.With(fetch.WithAuth(u.Hostname(), auth))
	h.negotiator = n
	h.resolver = identifier.NewResolver(h.classifier, n, h.logger)
	h.data.negotiator = n

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, err
	}
	h.logger.Debug("repeating landing request with credentials", zap.String("host", u.Hostname()))
	retry, rerr := n.Do(ctx, fetch.Request{
		URL:     resp.FinalURL,
		Classes: []fetch.MimeClass{fetch.ClassHTML, fetch.ClassAny},
		NoCache: true,
	})
	if retry == nil {
		return resp, rerr
	}
	return retry, rerr
}

// landing extracts embedded metadata and typed links from the landing page
func (h *Harvester) landing(ctx context.Context, r *run) {
	s := r.state
	if s.Landing == nil {
		return
	}
	r.seen(s.Landing)
	in := extract.NewInput(s.Landing)

	if in.IsHTML() {
		for _, c := range h.collectors.Embedded() {
			h.collect(r, c, in, model.MethodEmbedded, MetricCore)
		}
		if doc, err := in.Doc(); err == nil {
			s.Links = append(s.Links, extract.TypedLinks(doc, s.LandingURL)...)
		}
	} else if c := h.collectors.Find(in); c != nil {
		h.collect(r, c, in, model.MethodContentNegotiation, MetricCore)
	}

	for _, l := range fetch.FilterRel(s.Links, "linkset") {
		if !r.try(l.URL, fetch.AcceptHeader(fetch.ClassLinkset)) {
			continue
		}
		resp, err := h.negotiator.Fetch(ctx, l.URL, fetch.ClassLinkset)
		if err != nil {
			h.logger.Debug("linkset not retrieved", zap.String("url", l.URL), zap.Error(err))
			continue
		}
		links, err := fetch.ParseLinkset(resp.Body, resp.ContentType, resp.FinalURL)
		if err != nil {
			logging.ForMetric(h.logger, MetricSearchable).Warn("invalid linkset", zap.String("url", l.URL), zap.Error(err))
			continue
		}
		logging.ForMetric(h.logger, MetricSearchable).Info("signposting linkset found", zap.String("url", l.URL), zap.Int("links", len(links)))
		s.Links = append(s.Links, links...)
	}
	s.Links = fetch.DedupeLinks(s.Links)
}

// negotiateAll requests machine-readable representations of the known URLs
func (h *Harvester) negotiateAll(ctx context.Context, r *run) {
	s := r.state
	h.negotiate(ctx, r, s.OriginURL, r.inputRec.ResolverURL, s.LandingURL)
}

func (h *Harvester) negotiate(ctx context.Context, r *run, urls ...string) {
	var targets []string
	seen := make(map[string]bool)
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		targets = append(targets, u)
	}

	var reqs []fetch.Request
	for _, classes := range negotiationRounds {
		for _, u := range targets {
			if r.try(u, fetch.AcceptHeader(classes...)) {
				reqs = append(reqs, fetch.Request{URL: u, Classes: classes})
			}
		}
	}

	for _, out := range h.negotiator.FetchAll(ctx, reqs, h.cfg.LinkWorkers) {
		resp := out.Response
		if out.Err != nil || resp == nil || !resp.OK() {
			h.logger.Debug("content negotiation failed", zap.String("url", out.Request.URL),
				zap.String("accept", fetch.AcceptHeader(out.Request.Classes...)), zap.Error(out.Err))
			continue
		}
		in := extract.NewInput(resp)
		if in.IsHTML() || r.seen(resp) {
			continue
		}
		c := h.collectors.Find(in)
		if c == nil {
			h.logger.Debug("no collector for negotiated document", zap.String("url", resp.FinalURL), zap.String("content_type", resp.ContentType))
			continue
		}
		metric := MetricCore
		if c.Name() == extract.TagRDF || c.Name() == extract.TagXML {
			metric = MetricFormal
		}
		h.collect(r, c, in, model.MethodContentNegotiation, metric)
	}
}

// registry consults DataCite and GitHub and verifies the input PID
func (h *Harvester) registry(ctx context.Context, r *run) {
	s := r.state
	if r.opts.UseDataCite && r.inputRec.Scheme == model.SchemeDOI {
		h.datacite(ctx, r, r.inputRec.ResolverURL)
	}
	h.verifyInput(r)

	if r.opts.UseGitHub && s.LandingURL != "" {
		h.github(ctx, r)
	}
}

func (h *Harvester) datacite(ctx context.Context, r *run, resolverURL string) {
	if resolverURL == "" || !r.try(resolverURL, fetch.AcceptHeader(fetch.ClassDataCiteJSON)) {
		return
	}
	resp, err := h.negotiator.Fetch(ctx, resolverURL, fetch.ClassDataCiteJSON)
	if err != nil || resp == nil {
		logging.ForMetric(h.logger, MetricCore).Info("DataCite record not available", zap.String("url", resolverURL), zap.Error(err))
		return
	}
	in := extract.NewInput(resp)
	c := h.collectors.Get(extract.TagDataCite)
	if !c.CanHandle(in) {
		logging.ForMetric(h.logger, MetricCore).Info("DOI registration agency does not serve DataCite JSON",
			zap.String("url", resolverURL), zap.String("content_type", resp.ContentType))
		return
	}
	r.seen(resp)
	h.collect(r, c, in, model.MethodRegistryLookup, MetricCore)
}

// verifyInput decides whether the input PID resolves to its own landing page
// and records it in the PID collector
func (h *Harvester) verifyInput(r *run) {
	s := r.state
	rec := r.inputRec
	if rec.PID == "" {
		return
	}
	rec.Source = SourceInput
	if rec.Resolvable && rec.IsPersistent {
		rec.Verified = true
		registered := s.registeredLanding()
		if registered != "" && !identifier.SameHost(registered, rec.ResolvedURL) {
			rec.Verified = false
			logging.ForMetric(h.logger, MetricPersistentID).Warn("resolved landing page differs from registered URL",
				zap.String("registered", registered), zap.String("resolved", rec.ResolvedURL))
		}
	}
	s.PIDs.Add(rec)
}

// registeredLanding returns the landing URL a registry recorded for the PID
func (s *State) registeredLanding() string {
	for _, f := range s.Fragments {
		if f.Method != model.MethodRegistryLookup {
			continue
		}
		if v := f.Properties.String(model.KeyLandingPage); v != "" {
			return v
		}
	}
	return ""
}

func (h *Harvester) github(ctx context.Context, r *run) {
	s := r.state
	api, ok := extract.GitHubRepoAPI(s.LandingURL)
	if !ok || !r.try(api, fetch.AcceptHeader(fetch.ClassJSON)) {
		return
	}
	resp, err := h.negotiator.Fetch(ctx, api, fetch.ClassJSON)
	if err != nil {
		logging.ForMetric(h.logger, MetricLicense).Info("GitHub repository record not available", zap.String("url", api), zap.Error(err))
		return
	}
	r.seen(resp)
	h.collect(r, h.collectors.GitHub(), extract.NewInput(resp), model.MethodRegistryLookup, MetricCore)
}

// typedLinks follows metadata links found in headers, linksets and the HTML head
func (h *Harvester) typedLinks(ctx context.Context, r *run) {
	s := r.state
	var candidates []fetch.TypedLink
	seen := make(map[string]bool)
	for _, l := range fetch.FilterRel(s.Links, metadataRels...) {
		if seen[l.URL] || l.URL == s.LandingURL || !isMetadataType(l.Type) {
			continue
		}
		seen[l.URL] = true
		candidates = append(candidates, l)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].URL < candidates[j].URL })
	if len(candidates) > h.cfg.MaxTypedLinks {
		h.logger.Info("typed links capped", zap.Int("found", len(candidates)), zap.Int("max", h.cfg.MaxTypedLinks))
		candidates = candidates[:h.cfg.MaxTypedLinks]
	}

	var reqs []fetch.Request
	var links []fetch.TypedLink
	for _, l := range candidates {
		req := fetch.Request{URL: l.URL, Accept: l.Type}
		if l.Type == "" {
			req.Classes = []fetch.MimeClass{fetch.ClassDataCiteJSON, fetch.ClassSchemaOrgJSONLD, fetch.ClassRDF, fetch.ClassXML}
			req.Accept = fetch.AcceptHeader(req.Classes...)
		}
		if !r.try(l.URL, req.Accept) {
			continue
		}
		reqs = append(reqs, req)
		links = append(links, l)
	}

	for i, out := range h.negotiator.FetchAll(ctx, reqs, h.cfg.LinkWorkers) {
		l := links[i]
		if out.Err != nil || out.Response == nil || !out.Response.OK() {
			logging.ForMetric(h.logger, MetricCore).Info("typed link not retrieved", zap.String("url", l.URL), zap.String("rel", l.Rel), zap.Error(out.Err))
			continue
		}
		resp := out.Response
		if r.seen(resp) {
			continue
		}
		in := extract.NewInput(resp)
		c := h.collectors.Find(in)
		if c == nil {
			h.logger.Debug("no collector for typed link", zap.String("url", l.URL), zap.String("content_type", resp.ContentType))
			continue
		}
		method := model.MethodTypedLink
		if (l.Source == fetch.SourceHeader || l.Source == fetch.SourceLinkset) && l.IsSignposting() {
			method = model.MethodSignposting
		}
		h.collect(r, c, in, method, MetricCore)
	}
}

// isMetadataType reports whether a typed link's media type may carry metadata
func isMetadataType(t string) bool {
	if t == "" {
		return true
	}
	switch fetch.ClassOf(t) {
	case "", fetch.ClassHTML, fetch.ClassPlain:
		return false
	}
	return true
}

// resourceMap follows an OAI-ORE resource map link
func (h *Harvester) resourceMap(ctx context.Context, r *run) {
	s := r.state
	for _, l := range fetch.FilterRel(s.Links, "resourcemap") {
		if !r.try(l.URL, fetch.AcceptHeader(fetch.ClassAtom)) {
			continue
		}
		resp, err := h.negotiator.Fetch(ctx, l.URL, fetch.ClassAtom)
		if err != nil {
			logging.ForMetric(h.logger, MetricCore).Info("resource map not retrieved", zap.String("url", l.URL), zap.Error(err))
			continue
		}
		if r.seen(resp) {
			continue
		}
		h.collect(r, h.collectors.Get(extract.TagOREAtom), extract.NewInput(resp), model.MethodTypedLink, MetricCore)
	}
}

// discoverPIDs verifies the identifiers found in the metadata. A verified PID
// of a non-PID input triggers one more negotiation pass against that PID.
func (h *Harvester) discoverPIDs(ctx context.Context, r *run) {
	s := r.state
	for pass := 0; pass < 2; pass++ {
		s.remerge(r.extra)
		added := h.checkCandidates(ctx, r)
		if pass > 0 || s.Input.IsPersistent || s.RepeatPIDCheck || ctx.Err() != nil {
			return
		}
		var found *model.PidRecord
		for _, rec := range added {
			if rec.IsPersistent && rec.Verified {
				if found == nil || (rec.Scheme == model.SchemeDOI && found.Scheme != model.SchemeDOI) {
					found = &rec
				}
			}
		}
		if found == nil {
			return
		}
		s.RepeatPIDCheck = true
		s.DiscoveredPID = found
		logging.ForMetric(h.logger, MetricPersistentID).Info("persistent identifier found in metadata",
			zap.String("pid", found.PID), zap.String("scheme", string(found.Scheme)))

		h.negotiate(ctx, r, found.ResolverURL)
		if r.opts.UseDataCite && found.Scheme == model.SchemeDOI {
			h.datacite(ctx, r, found.ResolverURL)
		}
	}
}

func (h *Harvester) checkCandidates(ctx context.Context, r *run) []model.PidRecord {
	s := r.state
	type candidate struct {
		value  string
		source string
	}
	var candidates []candidate
	for _, v := range s.Merged.Properties.Strings(model.KeyObjectIdentifier) {
		candidates = append(candidates, candidate{v, SourceMetadata})
	}
	for _, l := range fetch.FilterRel(s.Links, "cite-as") {
		candidates = append(candidates, candidate{l.URL, SourceSignposting})
	}

	var added []model.PidRecord
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		id := h.classifier.Classify(c.value)
		if !id.Known() {
			continue
		}
		rec := model.PidRecord{
			PID:          id.Normalized,
			Scheme:       id.Scheme,
			IsPersistent: id.IsPersistent,
			ResolverURL:  id.ResolverURL,
			Source:       c.source,
		}
		if s.PIDs.Has(rec) {
			continue
		}
		if id.IsPersistent && r.opts.VerifyPIDs && id.ResolverURL != "" {
			resolved, _, err := h.resolver.Resolve(ctx, id)
			resolved.Source = c.source
			rec = resolved
			rec.Verified = rec.Resolvable && s.LandingURL != "" && identifier.SameHost(rec.ResolvedURL, s.LandingURL)
			if err != nil {
				logging.ForMetric(h.logger, MetricPersistentID).Info("identifier from metadata did not resolve",
					zap.String("pid", id.Normalized), zap.Error(err))
			}
		}
		s.PIDs.Add(rec)
		added = append(added, rec)
	}
	return added
}

// sampleData replaces the merged content items with the sampled ones
func (h *Harvester) sampleData(ctx context.Context, s *State) {
	items := s.ContentItems()
	if len(items) == 0 {
		logging.ForMetric(h.logger, MetricContent).Info("no data links found in metadata")
		return
	}
	s.Merged.Properties[model.KeyObjectContentIdentifier] = h.data.Sample(ctx, items)
}

// collect runs one collector and records its fragment
func (h *Harvester) collect(r *run, c extract.Collector, in *extract.Input, method model.OfferingMethod, metric string) {
	log := logging.ForMetric(h.logger, metric)
	if !c.CanHandle(in) {
		log.Debug("collector skipped", zap.String("collector", c.Name()), zap.String("url", in.URL))
		return
	}
	frag, err := c.Collect(in)
	switch {
	case errors.Is(err, extract.ErrNoMetadata):
		if err.Error() != extract.ErrNoMetadata.Error() {
			log.Info("no metadata found", zap.String("collector", c.Name()), zap.String("reason", err.Error()))
		} else {
			log.Debug("no metadata found", zap.String("collector", c.Name()), zap.String("url", in.URL))
		}
		return
	case err != nil:
		log.Warn("collector failed", zap.String("collector", c.Name()), zap.String("url", in.URL), zap.Error(err))
		r.state.Errors = append(r.state.Errors, c.Name()+": "+err.Error())
		return
	}

	r.state.addFragment(frag, method)
	metrics.FragmentsTotal.WithLabelValues(string(method)).Inc()
	log.Info("metadata found", zap.String("collector", c.Name()), zap.String("method", string(method)),
		zap.String("url", frag.SourceURL), zap.Int("properties", len(frag.Properties)))
}
