package app

import "go.trai.ch/codev/internal/core/domain"

// Dependencies converts every configured artifact, in file order.
func (a *App) Dependencies(cfg *domain.Config) (map[string]domain.Dependency, error) {
	artifacts := make([]*domain.Artifact, len(cfg.Artifacts))
	for i := range cfg.Artifacts {
		artifacts[i] = &cfg.Artifacts[i]
	}
	return a.dependencies(cfg, artifacts)
}
