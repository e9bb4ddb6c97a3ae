package postgresql

import (
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("postgresql", func(cfg *config.BaseConfig) (core.Destination, error) {
		d, err := NewPostgreSQLDestination("postgresql", cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
