// Package sources registers every source connector with the registry.
// Import it for its side effects:
//
//	import _ "github.com/ajitpratap0/nebula-connectors/pkg/connector/sources"
package sources

import (
	// Import all source connectors to trigger init() registration
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/csv"
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/outlook"
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/salesforce"
)
