// Package all registers every built-in checkpoint store backend. Import it
// for side effects only.
package all

import (
	_ "sheetops/internal/kvstore/file"
	_ "sheetops/internal/kvstore/redis"
	_ "sheetops/internal/kvstore/sqlite"
)
