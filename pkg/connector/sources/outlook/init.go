package outlook

import (
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("outlook", func(cfg *config.BaseConfig) (core.Source, error) {
		src, err := NewOutlookSource("outlook", cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	})
}
