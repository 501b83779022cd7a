//go:build tools

// Package nexchat pins the code generators used by `go generate` (mockgen)
// so that go.mod tracks them and a fresh checkout can regenerate mocks/.
package nexchat

import (
	_ "go.uber.org/mock/mockgen"
)
