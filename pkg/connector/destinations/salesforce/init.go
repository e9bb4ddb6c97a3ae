package salesforce

import (
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("salesforce", func(cfg *config.BaseConfig) (core.Destination, error) {
		dest, err := NewSalesforceDestination("salesforce", cfg)
		if err != nil {
			return nil, err
		}
		return dest, nil
	})
}
