package migrate

import "embed"

// Migrations holds the SQL files shipped inside the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// EmbeddedDir is the directory name inside Migrations.
const EmbeddedDir = "migrations"
