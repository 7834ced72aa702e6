// Package migrations bundles the PostgreSQL schema so the binary can
// migrate without the source tree.
package migrations

import "embed"

// FS holds every goose migration file.
//
//go:embed *.sql
var FS embed.FS
