package s3

import (
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("s3", func(cfg *config.BaseConfig) (core.Destination, error) {
		d, err := NewS3Destination("s3", cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
