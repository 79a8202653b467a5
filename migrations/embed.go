// Package migrations embeds the SQL schema so the skill binary can migrate
// its database without the files on disk. Import it for its side effect.
package migrations

import (
	"embed"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
