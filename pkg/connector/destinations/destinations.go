// Package destinations registers every destination connector. Import it for
// its side effects:
//
//	import _ "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations"
package destinations

import (
	// Each package registers itself with the registry in init().
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/file"
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/gcs"
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/postgresql"
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/s3"
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/salesforce"
)
