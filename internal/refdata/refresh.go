package refdata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/cache"
	"github.com/ppiankov/fairmeter/internal/fetch"
)

// Source is an authoritative online location of a reference file
type Source struct {
	Name string
	URL  string
	// Validate rejects downloads that would break Load
	Validate func([]byte) error
}

// DefaultSources lists the files Refresh downloads
var DefaultSources = []Source{
	{
		Name:     FileLicenses,
		URL:      "https://raw.githubusercontent.com/spdx/license-list-data/main/json/licenses.json",
		Validate: validateLicenses,
	},
}

// RefreshResult reports one refreshed file
type RefreshResult struct {
	Name  string
	URL   string
	Bytes int
	Err   error
}

// Refresh downloads sources and stores them under StoreKey in store, never expiring.
// A failing source leaves the previous entry in place.
func Refresh(ctx context.Context, n *fetch.Negotiator, store cache.Cache, sources []Source) []RefreshResult {
	results := make([]RefreshResult, 0, len(sources))
	for _, src := range sources {
		res := RefreshResult{Name: src.Name, URL: src.URL}

		resp, err := n.Do(ctx, fetch.Request{
			URL:      src.URL,
			Classes:  []fetch.MimeClass{fetch.ClassJSON, fetch.ClassAny},
			MaxBytes: 50_000_000,
			NoCache:  true,
		})
		switch {
		case err != nil:
			res.Err = err
		case resp.Truncated:
			res.Err = fmt.Errorf("%s exceeds size limit", src.URL)
		case src.Validate != nil:
			if verr := src.Validate(resp.Body); verr != nil {
				res.Err = apperr.Parse("refdata.Refresh", verr)
			}
		}

		if res.Err == nil {
			res.Bytes = len(resp.Body)
			if err := store.Set(StoreKey(src.Name), resp.Body, -1); err != nil {
				res.Err = fmt.Errorf("store %s: %w", src.Name, err)
			}
		}
		results = append(results, res)
	}
	return results
}

func validateLicenses(data []byte) error {
	var doc struct {
		Licenses []License `json:"licenses"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode license list: %w", err)
	}
	if len(doc.Licenses) == 0 {
		return fmt.Errorf("license list is empty")
	}
	return nil
}
