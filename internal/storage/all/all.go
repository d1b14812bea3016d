// Package all links every storage backend into the binary. Import it for its
// side effects:
//
//	import _ "customeretl/internal/storage/all"
package all

import (
	_ "customeretl/internal/storage/mssql"
	_ "customeretl/internal/storage/postgres"
	_ "customeretl/internal/storage/sqlite"
)
