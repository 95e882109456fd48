package fetch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one request of FetchAll
type Outcome struct {
	Request  Request
	Response *Response
	Err      error
}

// FetchAll performs independent requests with at most limit in flight.
// Outcomes are returned in request order regardless of completion order.
func (n *Negotiator) FetchAll(ctx context.Context, reqs []Request, limit int) []Outcome {
	out := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return out
	}
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := n.Do(gctx, req)
			out[i] = Outcome{Request: req, Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
