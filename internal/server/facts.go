package server

import (
	"net"
	"net/http"
	"strings"

	"url-rewrite/internal/rules"
)

// RequestFacts collects the inputs rule conditions can read from r: one
// HTTP_* fact per header plus the usual server variables.
func RequestFacts(r *http.Request) rules.Facts {
	facts := make(rules.Facts, len(r.Header)+12)
	for name, values := range r.Header {
		facts[rules.HeaderFact(name)] = strings.Join(values, ",")
	}

	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	serverName, serverPort := host, ""
	if h, p, err := net.SplitHostPort(host); err == nil {
		serverName, serverPort = h, p
	}

	https := "off"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		https = "on"
	}
	if serverPort == "" {
		serverPort = "80"
		if https == "on" {
			serverPort = "443"
		}
	}

	remoteAddr := r.RemoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = h
	}

	facts["HTTP_HOST"] = host
	facts["SERVER_NAME"] = serverName
	facts["SERVER_PORT"] = serverPort
	facts["HTTPS"] = https
	facts["REQUEST_METHOD"] = r.Method
	facts["REMOTE_ADDR"] = remoteAddr
	facts["REMOTE_HOST"] = remoteAddr
	if r.URL != nil {
		facts["QUERY_STRING"] = r.URL.RawQuery
		facts["REQUEST_URI"] = r.URL.RequestURI()
		facts["PATH_INFO"] = r.URL.Path
		facts["URL"] = r.URL.Path
	}
	return facts
}
