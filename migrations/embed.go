// Package migrations bakes the event store schema into the binary, so
// a deployed controller never depends on loose .sql files. Importing
// the package for side effects registers the schema with the database
// layer:
//
//	import _ "github.com/nerrad567/garage-door-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/garage-door-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files, ".")
}
