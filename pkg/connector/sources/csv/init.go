package csv

import (
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("csv", func(cfg *config.BaseConfig) (core.Source, error) {
		name := "csv"
		if cfg != nil && cfg.Name != "" {
			name = cfg.Name
		}
		return NewCSVSource(name), nil
	})
}
