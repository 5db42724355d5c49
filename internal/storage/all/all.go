// Package all registers every storage backend and the database/sql drivers
// they rely on. Import it for side effects from main packages.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "boosterdb/internal/storage/mssql"
	_ "boosterdb/internal/storage/mysql"
	_ "boosterdb/internal/storage/postgres"
	_ "boosterdb/internal/storage/sqlite"
)
