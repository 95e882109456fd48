// Package pipeline runs complete assessments: classify, harvest, evaluate, score.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/cache"
	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/evaluate"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/harvest"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/metrics"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
	"github.com/ppiankov/fairmeter/internal/score"
	"github.com/ppiankov/fairmeter/internal/worker"
)

// Option configures an Assessor
type Option func(*Assessor)

// WithTransport replaces the HTTP transport of every run
func WithTransport(rt http.RoundTripper) Option {
	return func(a *Assessor) { a.transport = rt }
}

// WithConsole sends run logs to w
func WithConsole(w io.Writer) Option {
	return func(a *Assessor) { a.console = w }
}

// WithRefData uses an already loaded reference data provider
func WithRefData(ref *refdata.Provider) Option {
	return func(a *Assessor) { a.ref = ref }
}

// WithCache replaces the response cache
func WithCache(c cache.Cache) Option {
	return func(a *Assessor) { a.cache = c }
}

// WithClock replaces the time source of report timestamps
func WithClock(now func() time.Time) Option {
	return func(a *Assessor) { a.now = now }
}

// Assessor orchestrates assessment runs. It is safe for concurrent use.
type Assessor struct {
	cfg        *model.Config
	ref        *refdata.Provider
	classifier *identifier.Classifier
	registry   *evaluate.Registry
	scorer     *score.Scorer
	negotiator *fetch.Negotiator
	transport  http.RoundTripper
	cache      cache.Cache
	console    io.Writer
	now        func() time.Time

	mu      sync.Mutex
	runners map[string]*evaluate.Runner
	def     *evaluate.Runner
}

// NewAssessor loads reference data and the configured catalog and prepares the
// shared HTTP stack. A catalog naming metrics without an evaluator is a config error.
func NewAssessor(cfg *model.Config, opts ...Option) (*Assessor, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	a := &Assessor{
		cfg:      cfg,
		registry: evaluate.DefaultRegistry(),
		scorer:   score.NewScorer(),
		now:      time.Now,
		runners:  make(map[string]*evaluate.Runner),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.ref == nil {
		ref, err := refdata.Load(refdata.Options{Dir: cfg.RefData.Dir, Store: RefDataStore(cfg)})
		if err != nil {
			return nil, err
		}
		a.ref = ref
	}
	a.classifier = identifier.NewClassifier(a.ref)

	cat, err := LoadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	runner, err := evaluate.NewRunner(a.registry, cat, a.ref)
	if err != nil {
		return nil, err
	}
	a.def = runner

	if a.cache == nil {
		a.cache = ResponseCache(cfg.Cache)
	}
	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	// unauthenticated GitHub API clients get 60 requests per hour
	limiter.SetHostRate("api.github.com", 1, 2)
	fopts := []fetch.Option{
		fetch.WithCache(a.cache),
		fetch.WithLimiter(limiter),
	}
	if a.transport != nil {
		fopts = append(fopts, fetch.WithTransport(a.transport))
	}
	a.negotiator = fetch.New(cfg.HTTP, fopts...)
	if cfg.HTTP.RespectRobots {
		robots := fetch.NewRobotsChecker(a.negotiator.Client(), a.negotiator.UserAgent())
		a.negotiator = a.negotiator.With(fetch.WithRobots(robots))
	}
	return a, nil
}

// LoadCatalog loads the catalog file when a path is set, else the embedded version
func LoadCatalog(cfg model.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path != "" {
		return catalog.LoadFile(cfg.Path)
	}
	version := cfg.Version
	if version == "" {
		version = model.DefaultConfig().Catalog.Version
	}
	return catalog.LoadEmbedded(version)
}

// ResponseCache builds the response cache described by cfg
func ResponseCache(cfg model.CacheConfig) cache.Cache {
	switch {
	case !cfg.Enabled:
		return cache.Nop{}
	case cfg.Dir == "":
		return cache.NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	default:
		return cache.NewMemoryDiskCache(cfg.MemoryTTL, filepath.Join(cfg.Dir, "http"), cfg.DiskTTL)
	}
}

// RefDataStore is the cache that reference data refreshes are written to
func RefDataStore(cfg *model.Config) cache.Cache {
	if cfg.Cache.Dir == "" {
		return cache.Nop{}
	}
	return cache.NewDiskCache(filepath.Join(cfg.Cache.Dir, "refdata"), 0)
}

// RefData returns the reference data used by the assessor
func (a *Assessor) RefData() *refdata.Provider {
	return a.ref
}

// Catalog returns the default catalog
func (a *Assessor) Catalog() *catalog.Catalog {
	return a.def.Catalog()
}

// runner returns the evaluation runner for an embedded catalog version; empty
// or the configured version yields the default runner
func (a *Assessor) runner(version string) (*evaluate.Runner, error) {
	if version == "" || version == a.def.Catalog().Version {
		return a.def, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.runners[version]; ok {
		return r, nil
	}
	cat, err := catalog.LoadEmbedded(version)
	if err != nil {
		return nil, err
	}
	r, err := evaluate.NewRunner(a.registry, cat, a.ref)
	if err != nil {
		return nil, err
	}
	a.runners[version] = r
	return r, nil
}

// RunID derives the deterministic run id of an input identifier
func RunID(input string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(input))).String()
}

// Assess runs one assessment. Input and config problems are returned as errors;
// network and parse problems end up in the report.
func (a *Assessor) Assess(ctx context.Context, req model.RunRequest) (report *model.Report, err error) {
	started := a.now().UTC()
	defer func() {
		outcome := "ok"
		switch {
		case apperr.IsInput(err):
			outcome = "input_error"
		case err != nil:
			outcome = "error"
		case ctx.Err() != nil:
			outcome = "cancelled"
		}
		metrics.AssessmentsTotal.WithLabelValues(outcome).Inc()
		metrics.AssessmentDuration.Observe(a.now().Sub(started).Seconds())
	}()

	input := strings.TrimSpace(req.ObjectIdentifier)
	if input == "" {
		return nil, apperr.Input("object identifier is empty")
	}
	runner, err := a.runner(req.MetricVersion)
	if err != nil {
		return nil, err
	}
	id := a.classifier.Classify(input)
	if !id.Known() {
		return nil, apperr.Inputf("unsupported identifier %q", input)
	}

	logger, sink := logging.New(logging.Options{
		Writer:  a.console,
		Verbose: a.cfg.Output.Verbose,
		Debug:   req.Debug || a.cfg.Output.Debug,
	})
	defer func() { _ = logger.Sync() }()

	runID := RunID(input)
	logger.Info("assessment started",
		zap.String("run", runID),
		zap.String("identifier", input),
		zap.String("scheme", string(id.Scheme)),
		zap.String("metric_version", runner.Catalog().Version))

	n := a.negotiator.With(fetch.WithLogger(logger))
	h := harvest.New(n, a.ref, nil, *a.cfg, logger)
	state := h.Harvest(ctx, id, harvest.OptionsFor(req))

	results := runner.Run(state, logger, sink)
	summary := a.scorer.Summarize(results)

	cat := runner.Catalog()
	ended := a.now().UTC()
	report = &model.Report{
		TestID:              runID,
		SoftwareVersion:     model.SoftwareVersion,
		MetricVersion:       cat.Version,
		MetricSpecification: cat.Specification,
		Timestamp:           ended,
		TotalMetrics:        cat.TotalMetrics(),
		Request:             req,
		Summary:             summary,
		Results:             results,
		StartedAt:           started,
		EndedAt:             ended,
	}
	if req.Debug || a.cfg.Output.Debug {
		report.Harvest = state.Info()
	}
	report.Request.ObjectIdentifier = input

	logger.Info("assessment finished",
		zap.String("run", runID),
		zap.Float64("score_percent", summary.ScorePercent[score.Overall]),
		zap.Int("maturity", summary.Maturity[score.Overall]),
		zap.Duration("elapsed", ended.Sub(started)))
	return report, nil
}
