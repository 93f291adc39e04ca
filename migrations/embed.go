// Package migrations embeds the golang-migrate schema files, one directory
// per database driver.
package migrations

import "embed"

// FS contains the postgres/ and sqlite/ migration directories.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
