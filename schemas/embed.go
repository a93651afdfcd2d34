// Package schemas provides the embedded SQLite migration files for the local
// character store.
package schemas

import "embed"

// Migrations contains all SQL migration files, applied in file name order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
