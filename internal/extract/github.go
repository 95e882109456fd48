package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// GitHubAPI is the base URL of the GitHub REST API
const GitHubAPI = "https://api.github.com"

// GitHubCollector reads GitHub repository records
type GitHubCollector struct {
	ref  *refdata.Provider
	proj *Projector
}

// Name returns the collector tag
func (c *GitHubCollector) Name() string { return TagGitHub }

// CanHandle accepts JSON repository records
func (c *GitHubCollector) CanHandle(in *Input) bool {
	if in.Class() != fetch.ClassJSON {
		return false
	}
	var doc map[string]any
	if err := json.Unmarshal(in.Body, &doc); err != nil {
		return false
	}
	_, hasName := doc["full_name"]
	htmlURL, _ := doc["html_url"].(string)
	return hasName && strings.Contains(htmlURL, "github.com")
}

// Collect projects the repository record; the object type is always SoftwareSourceCode
func (c *GitHubCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	var doc map[string]any
	if err := json.Unmarshal(in.Body, &doc); err != nil {
		return nil, apperr.Parse("github", fmt.Errorf("invalid JSON: %w", err))
	}
	raw, err := c.proj.Project(c.ref.Projection("github"), doc)
	if err != nil {
		return nil, err
	}
	if lic, ok := raw[model.KeyLicense].(string); ok && strings.EqualFold(lic, "NOASSERTION") {
		delete(raw, model.KeyLicense)
	}
	if len(raw) == 0 {
		return nil, ErrNoMetadata
	}
	raw[model.KeyObjectType] = "SoftwareSourceCode"

	frag := newFragment(TagGitHub, FormatJSON, in)
	frag.Schema = "https://docs.github.com/rest/repos"
	frag.Properties = toProperties(raw, defaultListKeys)
	return frag, nil
}

// GitHubRepoAPI returns the API URL of the repository a github.com URL points into
func GitHubRepoAPI(landing string) (string, bool) {
	u, err := url.Parse(landing)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	repo := strings.TrimSuffix(parts[1], ".git")
	return GitHubAPI + "/repos/" + parts[0] + "/" + repo, true
}
