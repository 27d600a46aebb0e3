// Package configs provides embedded configuration files.
package configs

import _ "embed"

// Embedded configuration files for the `vanish config` command.

//go:embed config.yml
var DefaultConfigBytes []byte

//go:embed config-minimal.yml
var MinimalConfigBytes []byte
