// Package ledger records mirror and verify runs in SQLite.
//
// Each run gets a row in runs; the mirror engine streams per-resource
// outcomes and per-entry results through a Recorder bound to the run id, and
// verify stores its findings at the end of the sweep. The history command
// reads the same tables.
//
// Schema changes bump schemaVersion in schema.go; an older database must be
// deleted to adopt the new schema.
package ledger
