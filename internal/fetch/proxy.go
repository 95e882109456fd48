package fetch

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ProxyFunc returns a Transport proxy function. Without explicit proxy URLs
// the environment is used. noProxy is a comma separated list of hosts or
// domain suffixes that bypass the proxy.
func ProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	var bypass []string
	for _, entry := range strings.Split(noProxy, ",") {
		if entry = strings.ToLower(strings.TrimSpace(entry)); entry != "" {
			bypass = append(bypass, strings.TrimPrefix(entry, "."))
		}
	}

	return func(req *http.Request) (*url.URL, error) {
		host := strings.ToLower(req.URL.Hostname())
		for _, b := range bypass {
			if b == "*" || host == b || strings.HasSuffix(host, "."+b) {
				return nil, nil
			}
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil, nil
		}
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}
