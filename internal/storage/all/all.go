// Package all wires every built-in storage backend into the storage factory.
// Import it for side effects:
//
//	import _ "sheetops/internal/storage/all"
//
// Kinds made available: csvdir, sqlite, mysql, mssql, postgres (memory is
// always registered by the storage package itself).
package all

import (
	_ "sheetops/internal/storage/csvdir"
	_ "sheetops/internal/storage/postgres"
	_ "sheetops/internal/storage/sqlstore"
)
