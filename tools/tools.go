//go:build tools
// +build tools

// Package tools pins oapi-codegen so api/openapi.yaml is always checked
// against the same generator version. The tools build tag keeps it out of
// normal builds.
package tools

import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
)
