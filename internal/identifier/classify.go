// Package identifier classifies, normalizes and resolves object identifiers.
package identifier

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

var (
	hashRe           = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	w3idRe           = regexp.MustCompile(`(?i)^https?://w3id\.org/\S+$`)
	identifiersOrgRe = regexp.MustCompile(`(?i)^(?:https?://)?identifiers\.org/(\S+)$`)
	arkNoSlashRe     = regexp.MustCompile(`(?i)ark:(\d{5,9}/)`)
	nbnResolverRe    = regexp.MustCompile(`(?i)^https?://nbn-resolving\.(?:org|de)/(?:resolver\?.*?identifier=|urn/resolver\.pl\?urn=|)(urn:[^&\s]+)`)
)

var hashLengths = map[int]bool{32: true, 40: true, 64: true, 128: true}

// Classifier classifies identifiers using the reference identifier patterns
type Classifier struct {
	patterns []refdata.IdentifierPattern
}

// NewClassifier creates a classifier from reference data
func NewClassifier(ref *refdata.Provider) *Classifier {
	return &Classifier{patterns: ref.IdentifierPatterns}
}

type match struct {
	scheme     model.Scheme
	normalized string
	persistent bool
	resolver   string
}

// Classify determines scheme, normalized form, persistence and resolver URL.
// Unclassifiable input yields scheme unknown.
func (c *Classifier) Classify(input string) model.Identifier {
	id := model.Identifier{Raw: input, Scheme: model.SchemeUnknown}

	s := normalizeAliases(strings.TrimSpace(input))
	id.Normalized = s
	if s == "" {
		return id
	}

	var matches []match

	if u, ok := parseUUID(s); ok {
		matches = append(matches, match{scheme: model.SchemeUUID, normalized: u})
	} else if hashLengths[len(s)] && hashRe.MatchString(s) {
		matches = append(matches, match{scheme: model.SchemeHash, normalized: strings.ToLower(s)})
	} else {
		if w3idRe.MatchString(s) {
			matches = append(matches, match{scheme: model.SchemeW3ID, normalized: s, persistent: true, resolver: s})
		}
		if m := identifiersOrgRe.FindStringSubmatch(s); m != nil {
			norm := "https://identifiers.org/" + m[1]
			matches = append(matches, match{scheme: model.SchemeIdentifiersOrg, normalized: norm, persistent: true, resolver: norm})
		}
		for i := range c.patterns {
			p := &c.patterns[i]
			norm, ok := p.Match(s)
			if !ok {
				continue
			}
			if p.Scheme == model.SchemeARK {
				norm = normalizeARK(norm)
			}
			matches = append(matches, match{
				scheme:     p.Scheme,
				normalized: norm,
				persistent: p.Persistent,
				resolver:   resolverURL(p, norm),
			})
		}
		if isURL(s) {
			matches = append(matches, match{scheme: model.SchemeURL, normalized: s, resolver: s})
		}
	}

	if len(matches) == 0 {
		return id
	}

	matches = dropSubsumed(matches)
	for _, m := range matches {
		id.Schemes = append(id.Schemes, m.scheme)
	}

	best := pick(matches)
	id.Scheme = best.scheme
	id.Normalized = best.normalized
	id.IsPersistent = best.persistent
	id.ResolverURL = best.resolver
	return id
}

// subsumed lists schemes implied by the key scheme; every DOI is also a handle
var subsumed = map[model.Scheme][]model.Scheme{
	model.SchemeDOI: {model.SchemeHandle},
}

// dropSubsumed removes the url match when a more specific scheme matched,
// and the schemes implied by a matched scheme
func dropSubsumed(matches []match) []match {
	if len(matches) < 2 {
		return matches
	}
	drop := map[model.Scheme]bool{model.SchemeURL: true}
	for _, m := range matches {
		for _, s := range subsumed[m.scheme] {
			drop[s] = true
		}
	}
	out := matches[:0:0]
	for _, m := range matches {
		if !drop[m.scheme] {
			out = append(out, m)
		}
	}
	return out
}

// pick prefers doi, then the first persistent scheme, then the first match
func pick(matches []match) match {
	for _, m := range matches {
		if m.scheme == model.SchemeDOI {
			return m
		}
	}
	for _, m := range matches {
		if m.persistent {
			return m
		}
	}
	return matches[0]
}

// PreferredPID picks among identifiers the same way Classify breaks ties
func PreferredPID(ids []model.Identifier) (model.Identifier, bool) {
	for _, id := range ids {
		if id.Scheme == model.SchemeDOI {
			return id, true
		}
	}
	for _, id := range ids {
		if id.IsPersistent {
			return id, true
		}
	}
	return model.Identifier{}, false
}

func normalizeAliases(s string) string {
	if m := nbnResolverRe.FindStringSubmatch(s); m != nil {
		if dec, err := url.QueryUnescape(m[1]); err == nil {
			return dec
		}
		return m[1]
	}
	return arkNoSlashRe.ReplaceAllString(s, "ark:/$1")
}

func normalizeARK(s string) string {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "ark:/") {
		return "ark:/" + s[5:]
	}
	if strings.HasPrefix(lower, "ark:") {
		return "ark:/" + s[4:]
	}
	return s
}

func resolverURL(p *refdata.IdentifierPattern, norm string) string {
	switch {
	case p.Scheme == model.SchemeURN && !strings.HasPrefix(strings.ToLower(norm), "urn:nbn:"):
		return ""
	case p.Resolver != "":
		return p.Resolver + norm
	case isURL(norm):
		return norm
	default:
		return ""
	}
}

// parseUUID accepts the dashed, braced and urn:uuid forms only; bare 32-digit
// hex strings are left to the hash check
func parseUUID(s string) (string, bool) {
	switch len(s) {
	case 36, 38, 45:
	default:
		return "", false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return true
	}
	return false
}
