package ports

import "go.trai.ch/codev/internal/core/domain"

// ConfigLoader defines the interface for loading the project configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load finds the configuration starting from cwd. An explicit path wins
	// over discovery. Defaults are returned when no file exists.
	Load(cwd, path string) (*domain.Config, error)
}
