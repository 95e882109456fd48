package harvest

import (
	"github.com/ppiankov/fairmeter/internal/model"
)

// PID record sources
const (
	SourceInput       = "input"
	SourceMetadata    = "metadata"
	SourceSignposting = "signposting"
)

// PIDCollector holds PID records keyed by resolver URL. Writes insert or
// enrich; a field once set is never cleared.
type PIDCollector struct {
	order   []string
	records map[string]model.PidRecord
}

// NewPIDCollector creates an empty collector
func NewPIDCollector() *PIDCollector {
	return &PIDCollector{records: make(map[string]model.PidRecord)}
}

// Add inserts rec or enriches the record with the same key
func (c *PIDCollector) Add(rec model.PidRecord) {
	key := rec.Key()
	cur, ok := c.records[key]
	if !ok {
		c.order = append(c.order, key)
		c.records[key] = rec
		return
	}
	if cur.Scheme == "" || cur.Scheme == model.SchemeUnknown {
		cur.Scheme = rec.Scheme
	}
	if cur.ResolvedURL == "" {
		cur.ResolvedURL = rec.ResolvedURL
	}
	if len(cur.StatusChain) == 0 {
		cur.StatusChain = rec.StatusChain
	}
	if cur.Source == "" {
		cur.Source = rec.Source
	}
	cur.IsPersistent = cur.IsPersistent || rec.IsPersistent
	cur.Resolvable = cur.Resolvable || rec.Resolvable
	cur.Verified = cur.Verified || rec.Verified
	c.records[key] = cur
}

// Get returns the record for a key
func (c *PIDCollector) Get(key string) (model.PidRecord, bool) {
	rec, ok := c.records[key]
	return rec, ok
}

// Has reports whether a record with the key of rec exists
func (c *PIDCollector) Has(rec model.PidRecord) bool {
	_, ok := c.records[rec.Key()]
	return ok
}

// Len returns the number of records
func (c *PIDCollector) Len() int {
	return len(c.order)
}

// Records returns the records in insertion order
func (c *PIDCollector) Records() []model.PidRecord {
	out := make([]model.PidRecord, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.records[k])
	}
	return out
}

// Verified returns the persistent records that resolve to the landing page,
// DOIs first
func (c *PIDCollector) Verified() []model.PidRecord {
	var dois, others []model.PidRecord
	for _, rec := range c.Records() {
		if !rec.IsPersistent || !rec.Verified {
			continue
		}
		if rec.Scheme == model.SchemeDOI {
			dois = append(dois, rec)
		} else {
			others = append(others, rec)
		}
	}
	return append(dois, others...)
}
