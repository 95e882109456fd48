package identifier

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
)

// Resolver resolves identifiers to landing pages through the negotiator
type Resolver struct {
	classifier *Classifier
	negotiator *fetch.Negotiator
	logger     *zap.Logger
}

// NewResolver creates a resolver
func NewResolver(c *Classifier, n *fetch.Negotiator, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{classifier: c, negotiator: n, logger: logger}
}

// Classify delegates to the classifier
func (r *Resolver) Classify(input string) model.Identifier {
	return r.classifier.Classify(input)
}

// Resolve requests the resolver URL of id preferring HTML and returns the PID
// record along with the landing response. Identifiers without a resolver URL
// are returned unresolved with a nil response. A non-nil error is a fetch
// failure; the record is still usable.
func (r *Resolver) Resolve(ctx context.Context, id model.Identifier, classes ...fetch.MimeClass) (model.PidRecord, *fetch.Response, error) {
	rec := model.PidRecord{
		PID:          id.Normalized,
		Scheme:       id.Scheme,
		IsPersistent: id.IsPersistent,
		ResolverURL:  id.ResolverURL,
	}
	if id.ResolverURL == "" {
		return rec, nil, nil
	}
	if len(classes) == 0 {
		classes = []fetch.MimeClass{fetch.ClassHTML, fetch.ClassAny}
	}

	resp, err := r.negotiator.Fetch(ctx, id.ResolverURL, classes...)
	if resp != nil {
		rec.ResolvedURL = resp.FinalURL
		rec.StatusChain = resp.StatusChain
		rec.Resolvable = resp.OK()
	}
	if err != nil {
		r.logger.Debug("identifier did not resolve",
			zap.String("pid", id.Normalized),
			zap.String("resolver_url", id.ResolverURL),
			zap.Error(err))
	}
	return rec, resp, err
}

// Host returns the lowercased hostname of rawURL without a leading www.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameHost reports whether two URLs point to the same host
func SameHost(a, b string) bool {
	ha, hb := Host(a), Host(b)
	return ha != "" && ha == hb
}
