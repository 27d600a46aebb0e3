package version

import (
	"net/http"
	"strings"
)

// Version information set by build flags
// Set using -ldflags "-X go.minekube.com/vanish/pkg/version.version=v1.2.3"
var version string = "unknown"

func String() string {
	return version
}

// UserAgent is sent by backends when dialing the proxy bridge.
func UserAgent() string {
	s := strings.Builder{}
	s.WriteString("Minekube-Vanish/")
	if v := String(); v != "" {
		s.WriteString(v)
	} else {
		s.WriteString("Dirty")
	}
	return s.String()
}

func UserAgentHeader() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", UserAgent())
	return h
}
