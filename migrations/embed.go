// Package migrations embeds the SQL schema files applied by dashboardctl migrate.
package migrations

import "embed"

// Files holds every migration, named NNNN_description.sql.
//
//go:embed *.sql
var Files embed.FS
