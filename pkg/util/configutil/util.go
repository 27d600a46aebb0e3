// Package configutil helps loading configuration with viper.
package configutil

// SetDefault is an interface to abstract setting Viper defaults.
// (e.g. Allows adding a key prefix to every call to SetDefault when used with SetDefaultFunc.)
type SetDefault interface {
	SetDefault(key string, value any)
}

// SetDefaultFunc implements SetDefault.
type SetDefaultFunc func(key string, value any)

// See SetDefault interface.
func (f SetDefaultFunc) SetDefault(key string, value any) {
	if f == nil {
		return
	}
	f(key, value)
}

// Prefixed returns a SetDefault that prefixes every key with prefix and a dot.
func Prefixed(s SetDefault, prefix string) SetDefault {
	if prefix == "" {
		return s
	}
	return SetDefaultFunc(func(key string, value any) {
		s.SetDefault(prefix+"."+key, value)
	})
}

// SetDefaults sets a default for every leaf of the nested values map
// using dotted keys, e.g. bridge.secret.
// Setting leaves instead of whole sections keeps every key visible to
// environment variable lookups.
func SetDefaults(s SetDefault, values map[string]any) {
	for k, v := range values {
		if m, ok := v.(map[string]any); ok && len(m) != 0 {
			SetDefaults(Prefixed(s, k), m)
			continue
		}
		s.SetDefault(k, v)
	}
}
