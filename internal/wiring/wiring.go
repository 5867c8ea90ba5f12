// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/codev/internal/adapters/cas"
	_ "go.trai.ch/codev/internal/adapters/config"
	_ "go.trai.ch/codev/internal/adapters/fs"
	_ "go.trai.ch/codev/internal/adapters/logger"
	_ "go.trai.ch/codev/internal/adapters/metadata"
	_ "go.trai.ch/codev/internal/adapters/shell"
	_ "go.trai.ch/codev/internal/adapters/telemetry"
	// Register app and engine nodes.
	_ "go.trai.ch/codev/internal/app"
	_ "go.trai.ch/codev/internal/engine/scheduler"
)
