package model

// Scheme names an identifier scheme
type Scheme string

const (
	SchemeDOI            Scheme = "doi"
	SchemeHandle         Scheme = "handle"
	SchemeARK            Scheme = "ark"
	SchemeURN            Scheme = "urn"
	SchemePURL           Scheme = "purl"
	SchemeW3ID           Scheme = "w3id"
	SchemeIdentifiersOrg Scheme = "identifiers.org"
	SchemeORCID          Scheme = "orcid"
	SchemeURL            Scheme = "url"
	SchemeUUID           Scheme = "uuid"
	SchemeHash           Scheme = "hash"
	SchemeUnknown        Scheme = "unknown"
)

// Identifier is a classified input or discovered identifier
type Identifier struct {
	Raw          string   `json:"raw"`
	Normalized   string   `json:"normalized"`
	Scheme       Scheme   `json:"scheme"`
	Schemes      []Scheme `json:"schemes,omitempty"` // every scheme that matched, before tie-break
	IsPersistent bool     `json:"is_persistent"`
	ResolverURL  string   `json:"resolver_url,omitempty"`
}

// Known reports whether the identifier matched any scheme
func (id Identifier) Known() bool {
	return id.Scheme != "" && id.Scheme != SchemeUnknown
}

// PidRecord is one entry of the PID collector
type PidRecord struct {
	PID          string `json:"pid"`
	Scheme       Scheme `json:"scheme"`
	IsPersistent bool   `json:"is_persistent"`
	ResolverURL  string `json:"resolver_url,omitempty"`
	ResolvedURL  string `json:"resolved_url,omitempty"`
	StatusChain  []int  `json:"status_chain,omitempty"`
	Resolvable   bool   `json:"resolvable"`
	Verified     bool   `json:"verified"`
	Source       string `json:"source,omitempty"` // input, metadata, signposting
}

// Key returns the collector key of the record (resolver URL when known)
func (p PidRecord) Key() string {
	if p.ResolverURL != "" {
		return p.ResolverURL
	}
	return p.PID
}
