//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep mockgen, invoked through
// `go generate ./contract/...`, pinned in go.mod so mocks regenerate the
// same way on a fresh checkout or in CI.
package whiteboard_relay

import (
	_ "go.uber.org/mock/mockgen"
)
