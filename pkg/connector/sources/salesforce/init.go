package salesforce

import (
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("salesforce", func(cfg *config.BaseConfig) (core.Source, error) {
		src, err := NewSalesforceSource("salesforce", cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	})
}
