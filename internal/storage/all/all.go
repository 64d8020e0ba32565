// Package all registers every mirror backend with the storage factory.
// Blank-import it from a main package to make all kinds selectable at
// runtime.
package all

import (
	_ "eds/internal/storage/mssql"
	_ "eds/internal/storage/postgres"
	_ "eds/internal/storage/sqlite"
)
