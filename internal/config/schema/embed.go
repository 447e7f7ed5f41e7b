package schema

import _ "embed"

//go:embed darwinia-builder-config.schema.json
var ConfigSchema []byte
