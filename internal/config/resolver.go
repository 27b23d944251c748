package config

import (
	"net"
	"net/url"
	"strings"
)

// ResolveDatabaseURI rewrites the host of uri to privateDomain, keeping
// credentials, path and query intact. The private domain may carry its own
// port; otherwise the original port is kept. URIs already pointing at a
// *.railway.internal host and anything that fails to parse are returned
// unchanged.
func ResolveDatabaseURI(uri, privateDomain string) string {
	if uri == "" || strings.TrimSpace(privateDomain) == "" {
		return uri
	}

	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return uri
	}

	if strings.HasSuffix(parsed.Hostname(), "railway.internal") {
		return uri
	}

	private, err := url.Parse("//" + strings.TrimSpace(privateDomain))
	if err != nil || private.Hostname() == "" {
		return uri
	}

	port := private.Port()
	if port == "" {
		port = parsed.Port()
	}

	host := private.Hostname()
	if port != "" {
		host = net.JoinHostPort(host, port)
	}

	parsed.Host = host
	return parsed.String()
}
