package file

import (
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
)

func init() {
	for _, f := range []formats.Format{formats.CSV, formats.JSON, formats.Parquet, formats.Avro} {
		format := f
		_ = registry.RegisterDestination(string(format), func(cfg *config.BaseConfig) (core.Destination, error) {
			name := string(format)
			if cfg != nil && cfg.Name != "" {
				name = cfg.Name
			}
			return NewFileDestination(name, format), nil
		})
	}
}
