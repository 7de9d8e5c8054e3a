// Package migration applies versioned SQL files to the reading store.
//
// Migration files are named {version}_{description}.sql, read from an fs.FS
// (normally an embedded directory) and applied in ascending numeric order.
// Each file runs in its own transaction and is recorded in the
// schema_migrations table together with its checksum and execution time.
package migration
