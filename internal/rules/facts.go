package rules

import "strings"

// Facts holds the request-derived values conditions read, keyed by input name
// (HTTP_HOST, QUERY_STRING, HTTP_USER_AGENT and so on)
type Facts map[string]string

// Get returns the value for name. Lookup falls back to the upper-cased name,
// and a missing input yields the empty string.
func (f Facts) Get(name string) string {
	if v, ok := f[name]; ok {
		return v
	}
	return f[strings.ToUpper(name)]
}

// HeaderFact returns the fact name used for an HTTP header, e.g. User-Agent
// becomes HTTP_USER_AGENT
func HeaderFact(header string) string {
	return "HTTP_" + strings.ToUpper(strings.ReplaceAll(header, "-", "_"))
}

// ResponseHeaderFact returns the fact name outbound conditions use for a
// response header, e.g. Content-Type becomes RESPONSE_CONTENT_TYPE
func ResponseHeaderFact(header string) string {
	return "RESPONSE_" + strings.ToUpper(strings.ReplaceAll(header, "-", "_"))
}
