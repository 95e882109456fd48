package fetch

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/ppiankov/fairmeter/internal/model"
)

// AuthTransport adds an Authorization header to requests for one host
type AuthTransport struct {
	Base   http.RoundTripper
	Host   string
	Scheme string // Basic or Bearer
	Token  string
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Token == "" || !strings.EqualFold(req.URL.Hostname(), t.Host) || req.Header.Get("Authorization") != "" {
		return base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", authorization(t.Scheme, t.Token))
	return base.RoundTrip(clone)
}

func authorization(scheme, token string) string {
	if strings.EqualFold(scheme, "basic") {
		// user:password tokens are encoded, pre-encoded tokens pass through
		if strings.Contains(token, ":") {
			token = base64.StdEncoding.EncodeToString([]byte(token))
		}
		return "Basic " + token
	}
	return "Bearer " + token
}

// WithAuth restricts credentials to host
func WithAuth(host string, auth *model.Auth) Option {
	return func(n *Negotiator) {
		if auth == nil || auth.Token == "" || host == "" {
			return
		}
		n.auth = &AuthTransport{Host: host, Scheme: auth.Scheme, Token: auth.Token}
	}
}
