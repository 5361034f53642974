// Package all links every storage backend into the binary.
package all

import (
	_ "adaptiveclean/internal/storage/memory"
	_ "adaptiveclean/internal/storage/mssql"
	_ "adaptiveclean/internal/storage/postgres"
	_ "adaptiveclean/internal/storage/sqlite"
)
