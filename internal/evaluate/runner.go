package evaluate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/harvest"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/metrics"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// Runner evaluates every metric of a catalog
type Runner struct {
	registry   *Registry
	catalog    *catalog.Catalog
	ref        *refdata.Provider
	classifier *identifier.Classifier
}

// NewRunner returns a runner after checking that the registry covers the catalog
func NewRunner(reg *Registry, cat *catalog.Catalog, ref *refdata.Provider) (*Runner, error) {
	if err := reg.Verify(cat); err != nil {
		return nil, err
	}
	return &Runner{registry: reg, catalog: cat, ref: ref, classifier: identifier.NewClassifier(ref)}, nil
}

// Catalog returns the catalog the runner evaluates
func (r *Runner) Catalog() *catalog.Catalog { return r.catalog }

// Run evaluates the state in catalog order. Lines the sink captured for a metric
// id are attached to its result.
func (r *Runner) Run(state *harvest.State, logger *zap.Logger, sink *logging.Sink) []model.MetricResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := &Context{State: state, Ref: r.ref, Catalog: r.catalog, Classifier: r.classifier, Logger: logger}

	results := make([]model.MetricResult, 0, len(r.catalog.Metrics))
	for i := range r.catalog.Metrics {
		metric := &r.catalog.Metrics[i]
		res := r.evaluate(ctx, metric)
		if sink != nil {
			res.TestDebug = sink.Lines(metric.AgnosticIdentifier)
		}
		metrics.EvaluationsTotal.WithLabelValues(metric.AgnosticIdentifier, string(res.TestStatus)).Inc()
		results = append(results, res)
	}
	return results
}

func (r *Runner) evaluate(ctx *Context, metric *catalog.Metric) (res model.MetricResult) {
	family, _ := r.registry.Lookup(metric.AgnosticIdentifier)
	b := NewBase(ctx, metric, family.Tests)
	defer func() {
		if p := recover(); p != nil {
			b.Log().Error("evaluator failed", zap.String("error", fmt.Sprint(p)))
			res = NewBase(ctx, metric, family.Tests).Result(nil)
		}
	}()
	b.Log().Debug("evaluating metric", zap.String("metric_identifier", metric.Identifier), zap.String("family", family.Name))
	return family.New(b).Evaluate()
}
