// Package componentutil parses configured chat messages.
package componentutil

import (
	"strings"

	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/common/minecraft/component/codec"
	"go.minekube.com/common/minecraft/component/codec/legacy"
)

var (
	jsonCodec   = &codec.Json{NoDownsampleColor: true, NoLegacyHover: true}
	legacyCodec = &legacy.Legacy{Char: legacy.AmpersandChar}
)

// ParseMessage parses a JSON text component if s starts with '{' or
// otherwise a legacy message using '&' color codes.
func ParseMessage(s string) (component.Component, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		return jsonCodec.Unmarshal([]byte(s))
	}
	return legacyCodec.Unmarshal([]byte(s))
}

// Format replaces every {key} in template with its value.
func Format(template string, placeholders map[string]string) string {
	if len(placeholders) == 0 {
		return template
	}
	oldnew := make([]string, 0, len(placeholders)*2)
	for k, v := range placeholders {
		oldnew = append(oldnew, "{"+k+"}", v)
	}
	return strings.NewReplacer(oldnew...).Replace(template)
}

// Plain returns c as a legacy string using '&' color codes.
func Plain(c component.Component) string {
	b := new(strings.Builder)
	if err := legacyCodec.Marshal(b, c); err != nil {
		return ""
	}
	return b.String()
}
