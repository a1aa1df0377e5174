// Package contracts embeds the OpenAPI documents served and enforced by the API.
package contracts

import _ "embed"

//go:embed compliance.yaml
var ComplianceYAML []byte
